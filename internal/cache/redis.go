package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "storefront:order:"
	defaultTTL = 15 * time.Minute
	maxJitter  = 5 * time.Minute
)

// RedisCache holds serialized orders. Entries are dropped on every write and
// on every order event, so the TTL only bounds how long an idle entry lives.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: defaultTTL}
}

func (r *RedisCache) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	raw, err := r.client.Get(ctx, orderKey(orderID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", orderID, err)
	}

	order := new(domain.Order)
	if err := json.Unmarshal(raw, order); err != nil {
		// A payload we cannot read is as good as missing.
		_ = r.client.Del(ctx, orderKey(orderID)).Err()
		return nil, ErrCacheMiss
	}
	return order, nil
}

// Set stores the order with a jittered TTL so entries written together do
// not expire together.
func (r *RedisCache) Set(ctx context.Context, order *domain.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.ID, err)
	}
	ttl := r.ttl + rand.N(maxJitter)
	if err := r.client.Set(ctx, orderKey(order.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", order.ID, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, orderID uuid.UUID) error {
	if err := r.client.Del(ctx, orderKey(orderID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", orderID, err)
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func orderKey(orderID uuid.UUID) string {
	return keyPrefix + orderID.String()
}
