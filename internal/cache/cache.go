package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

type OrderCache interface {
	Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID) (*domain.Order, error) { return nil, ErrCacheMiss }

func (Nop) Set(context.Context, *domain.Order) error { return nil }

func (Nop) Delete(context.Context, uuid.UUID) error { return nil }
