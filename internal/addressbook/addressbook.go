package addressbook

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrAddressNotFound = errors.New("address not found")
	ErrInvalidID       = errors.New("invalid address id")
)

type SavedAddress = domain.SavedAddress

type Book interface {
	Create(ctx context.Context, userID string, addr domain.Address) (*SavedAddress, error)
	List(ctx context.Context, userID string) ([]SavedAddress, error)
	Get(ctx context.Context, userID, id string) (*SavedAddress, error)
	Delete(ctx context.Context, userID, id string) error
	SetDefault(ctx context.Context, userID, id string) error
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}
