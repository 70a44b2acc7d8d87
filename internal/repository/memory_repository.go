package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs STORAGE_DRIVER=memory
// and the service tests, and mirrors the Postgres semantics including the outbox.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[uuid.UUID]*domain.Order
	checkouts  map[uuid.UUID]uuid.UUID
	requests   map[uuid.UUID]*domain.ReturnRequest
	outbox     []*OutboxEvent
	processed  map[int64]bool
	nextOutbox int64
	last       time.Time
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[uuid.UUID]*domain.Order),
		checkouts: make(map[uuid.UUID]uuid.UUID),
		requests:  make(map[uuid.UUID]*domain.ReturnRequest),
		processed: make(map[int64]bool),
		now:       time.Now,
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

func copyReturnRequest(rr *domain.ReturnRequest) domain.ReturnRequest {
	cp := *rr
	cp.Images = append([]string{}, rr.Images...)
	return cp
}

// tick returns a timestamp strictly after every one handed out before, so
// list ordering is stable and UpdatedAt always changes on write.
func (s *MemoryStore) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) appendOutbox(eventType domain.EventType, orderID uuid.UUID, at time.Time) error {
	payload, err := eventPayload(eventType, orderID, at)
	if err != nil {
		return err
	}
	s.nextOutbox++
	s.outbox = append(s.outbox, &OutboxEvent{
		ID:          s.nextOutbox,
		AggregateId: orderID.String(),
		EventType:   string(eventType),
		Payload:     payload,
		CreatedAt:   at,
	})
	return nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkouts[order.CheckoutID]; ok {
		return ErrDuplicateCheckout
	}
	now := s.tick()
	order.CreatedAt = now
	order.UpdatedAt = now

	s.orders[order.ID] = copyOrder(order)
	s.checkouts[order.CheckoutID] = order.ID
	return s.appendOutbox(domain.EventOrderCreated, order.ID, now)
}

func (s *MemoryStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, copyOrder(o))
		}
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, filter OrderFilter) ([]*domain.Order, error) {
	filter = filter.normalized()
	needle := strings.ToLower(filter.Search)

	s.mu.RLock()
	matched := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if needle != "" && !orderMatches(o, needle) {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	if filter.Offset >= len(matched) {
		return []*domain.Order{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func orderMatches(o *domain.Order, needle string) bool {
	fields := []string{o.ID.String(), o.UserID, o.ShippingAddress.FullName}
	for _, item := range o.Items {
		fields = append(fields, item.ProductName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func sortNewestFirst(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func (s *MemoryStore) UpdateOrder(_ context.Context, order *domain.Order, expectedUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return ErrConcurrentUpdate
	}
	stored.Status = order.Status
	stored.CancellationStatus = order.CancellationStatus
	stored.UpdatedAt = s.tick()
	order.UpdatedAt = stored.UpdatedAt
	return s.appendOutbox(domain.EventOrderUpdated, order.ID, stored.UpdatedAt)
}

func (s *MemoryStore) CreateReturnRequest(_ context.Context, rr *domain.ReturnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.OrderID == rr.OrderID && existing.ProductID == rr.ProductID {
			return ErrDuplicateReturnRequest
		}
	}
	now := s.tick()
	rr.CreatedAt = now
	rr.UpdatedAt = now

	cp := copyReturnRequest(rr)
	s.requests[rr.ID] = &cp
	return s.appendOutbox(domain.EventOrderUpdated, rr.OrderID, now)
}

func (s *MemoryStore) GetReturnRequest(_ context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rr, ok := s.requests[id]
	if !ok {
		return nil, ErrReturnRequestNotFound
	}
	cp := copyReturnRequest(rr)
	return &cp, nil
}

func (s *MemoryStore) ListReturnRequestsByOrder(_ context.Context, orderID uuid.UUID) ([]domain.ReturnRequest, error) {
	out := s.filterRequests(func(rr *domain.ReturnRequest) bool { return rr.OrderID == orderID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListReturnRequestsByUser(_ context.Context, userID string) ([]domain.ReturnRequest, error) {
	out := s.filterRequests(func(rr *domain.ReturnRequest) bool { return rr.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListReturnRequests(_ context.Context, status domain.ReturnStatus) ([]domain.ReturnRequest, error) {
	out := s.filterRequests(func(rr *domain.ReturnRequest) bool { return status == "" || rr.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) filterRequests(keep func(*domain.ReturnRequest) bool) []domain.ReturnRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ReturnRequest, 0)
	for _, rr := range s.requests {
		if keep(rr) {
			out = append(out, copyReturnRequest(rr))
		}
	}
	return out
}

func (s *MemoryStore) UpdateReturnRequest(_ context.Context, rr *domain.ReturnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[rr.ID]
	if !ok {
		return ErrReturnRequestNotFound
	}
	stored.Status = rr.Status
	stored.AdminNote = rr.AdminNote
	stored.UpdatedAt = s.tick()
	rr.UpdatedAt = stored.UpdatedAt
	return s.appendOutbox(domain.EventOrderUpdated, stored.OrderID, stored.UpdatedAt)
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*OutboxEvent, 0)
	for _, ev := range s.outbox {
		if s.processed[ev.ID] {
			continue
		}
		cp := *ev
		events = append(events, &cp)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[id] = true
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
