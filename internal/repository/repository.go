package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateCheckout      = errors.New("order for this checkout already exists")
	ErrConcurrentUpdate       = errors.New("order was modified concurrently")
	ErrReturnRequestNotFound  = errors.New("return request not found")
	ErrDuplicateReturnRequest = errors.New("return request for this order item already exists")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderFilter narrows the admin order list. Search matches the order id, the
// user id, item names and the shipping name, case-insensitively.
type OrderFilter struct {
	Status domain.OrderStatus
	Search string
	Limit  int
	Offset int
}

func (f OrderFilter) normalized() OrderFilter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// OutboxEvent is a row waiting to be published to the order-events topic.
type OutboxEvent struct {
	ID          int64
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderRepository stores orders and their return requests. Every write also
// records an outbox event in the same transaction.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	// UpdateOrder persists status and cancellation status. It fails with
	// ErrConcurrentUpdate when the stored row is no longer at expectedUpdatedAt.
	UpdateOrder(ctx context.Context, order *domain.Order, expectedUpdatedAt time.Time) error

	CreateReturnRequest(ctx context.Context, rr *domain.ReturnRequest) error
	GetReturnRequest(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error)
	ListReturnRequestsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.ReturnRequest, error)
	ListReturnRequestsByUser(ctx context.Context, userID string) ([]domain.ReturnRequest, error)
	ListReturnRequests(ctx context.Context, status domain.ReturnStatus) ([]domain.ReturnRequest, error)
	UpdateReturnRequest(ctx context.Context, rr *domain.ReturnRequest) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type Store interface {
	OrderRepository
	OutboxRepository
	Ping(ctx context.Context) error
	Close() error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func eventPayload(eventType domain.EventType, orderID uuid.UUID, at time.Time) ([]byte, error) {
	return json.Marshal(domain.OrderEvent{
		Type:       eventType,
		OrderID:    orderID.String(),
		OccurredAt: at.UTC(),
	})
}
