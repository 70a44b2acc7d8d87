package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	m       sync.RWMutex
	orders  map[uuid.UUID]*domain.Order
	hits    int
	deletes int
	err     error
}

func newMockCache() *mockCache {
	return &mockCache{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockCache) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	m.hits++
	return copyOrder(o), nil
}

func (m *mockCache) Set(_ context.Context, o *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.orders[o.ID] = copyOrder(o)
	return m.err
}

func (m *mockCache) Delete(_ context.Context, id uuid.UUID) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.orders, id)
	m.deletes++
	return m.err
}

func (m *mockCache) cached(id uuid.UUID) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.orders[id]
	return ok
}

func (m *mockCache) hitCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.hits
}

// conflictStore loses every optimistic update, as if another admin got there first.
type conflictStore struct {
	*repository.MemoryStore
}

func (conflictStore) UpdateOrder(context.Context, *domain.Order, time.Time) error {
	return repository.ErrConcurrentUpdate
}

// racingReturnStore loses the insert to a concurrent request for the same item.
type racingReturnStore struct {
	*repository.MemoryStore
}

func (racingReturnStore) CreateReturnRequest(context.Context, *domain.ReturnRequest) error {
	return repository.ErrDuplicateReturnRequest
}

// countingImages records how many uploads reached the store.
type countingImages struct {
	*storage.MemoryStore
	m    sync.Mutex
	puts int
}

func (c *countingImages) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	c.m.Lock()
	c.puts++
	c.m.Unlock()
	return c.MemoryStore.Put(ctx, name, contentType, r)
}

func (c *countingImages) putCount() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.puts
}

var (
	customer = Actor{UserID: "user-1"}
	stranger = Actor{UserID: "user-2"}
	admin    = Actor{UserID: "admin-1", Admin: true}
)

func testAddress() domain.Address {
	return domain.Address{
		FullName:   "Jane Doe",
		Phone:      "+1 555 0100",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "62701",
		Country:    "US",
	}
}

func newOrderInput() NewOrder {
	return NewOrder{
		CheckoutID: uuid.New(),
		UserID:     customer.UserID,
		Items: []domain.OrderItem{
			{ProductID: 10, ProductName: "Linen Shirt", Quantity: 1, Price: 35.5, Size: "M"},
			{ProductID: 11, ProductName: "Wool Socks", Quantity: 2, Price: 6.25},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
		Currency:        "USD",
	}
}

// seedOrder stores an order for customer that is already in status.
func seedOrder(t *testing.T, store *repository.MemoryStore, status domain.OrderStatus, cancellation domain.CancellationStatus) *domain.Order {
	t.Helper()
	in := newOrderInput()
	order := &domain.Order{
		ID:                 uuid.New(),
		CheckoutID:         in.CheckoutID,
		UserID:             in.UserID,
		Status:             status,
		CancellationStatus: cancellation,
		Items:              in.Items,
		ShippingAddress:    in.ShippingAddress,
		PaymentMethod:      in.PaymentMethod,
		TotalAmount:        48,
		Currency:           in.Currency,
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	return order
}

type fixture struct {
	store   *repository.MemoryStore
	cache   *mockCache
	images  *countingImages
	book    *addressbook.MemoryBook
	metrics *metrics.Metrics
	orders  *OrderService
	returns *ReturnService
}

func newFixture() *fixture {
	f := &fixture{
		store:   repository.NewMemoryStore(),
		cache:   newMockCache(),
		images:  &countingImages{MemoryStore: storage.NewMemoryStore()},
		book:    addressbook.NewMemoryBook(),
		metrics: metrics.New(),
	}
	f.orders = NewOrderService(f.store, f.cache, f.metrics, zerolog.Nop())
	f.returns = NewReturnService(f.store, f.cache, f.images, f.book, f.metrics, zerolog.Nop())
	return f
}
