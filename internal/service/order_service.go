package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type OrderView = domain.OrderView

// NewOrder is a completed checkout turned into an order.
type NewOrder struct {
	CheckoutID      uuid.UUID
	UserID          string
	Items           []domain.OrderItem
	ShippingAddress domain.Address
	PaymentMethod   string
	TotalAmount     float64
	Currency        string
}

type OrderService struct {
	repo    repository.OrderRepository
	cache   cache.OrderCache
	metrics *metrics.Metrics
	log     zerolog.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewOrderService(repo repository.OrderRepository, c cache.OrderCache, m *metrics.Metrics, log zerolog.Logger) *OrderService {
	return &OrderService{
		repo:    repo,
		cache:   c,
		metrics: m,
		log:     logger.Component(log, "order-service"),
	}
}

// PlaceOrder creates a Pending order. Placing the same checkout twice returns
// repository.ErrDuplicateCheckout and leaves the first order untouched.
func (s *OrderService) PlaceOrder(ctx context.Context, in NewOrder) (*domain.Order, error) {
	if in.CheckoutID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "checkout_id", Code: "missing_field", Message: "is required"}
	}
	if in.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Code: "missing_field", Message: "is required"}
	}
	if len(in.Items) == 0 {
		return nil, &domain.ValidationError{Field: "items", Code: "missing_field", Message: "order has no items"}
	}

	order := &domain.Order{
		ID:              uuid.New(),
		CheckoutID:      in.CheckoutID,
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		TotalAmount:     in.TotalAmount,
		Currency:        in.Currency,
	}

	log := logger.FromContext(ctx, s.log)
	subtotal := order.Subtotal()
	if order.TotalAmount <= 0 {
		order.TotalAmount = subtotal.InexactFloat64()
	} else if !decimal.NewFromFloat(order.TotalAmount).Equal(subtotal) {
		log.Warn().
			Str(logger.ORDER, order.ID.String()).
			Str("subtotal", subtotal.StringFixed(2)).
			Float64("total", order.TotalAmount).
			Msg("order total differs from item subtotal")
	}

	err := s.repo.CreateOrder(ctx, order)
	s.metrics.Action("place", err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str(logger.ORDER, order.ID.String()).
		Str(logger.USER, order.UserID).
		Str("checkout_id", order.CheckoutID.String()).
		Msg("order placed")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*OrderView, error) {
	if err := actor.requireUser(); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canRead(order) {
		return nil, ErrForbidden
	}
	return s.view(ctx, actor, order)
}

// ListMyOrders returns the caller's orders, newest first, each with its actions and tracker.
func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor) ([]*OrderView, error) {
	if err := actor.requireUser(); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.ListReturnRequestsByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[uuid.UUID][]domain.ReturnRequest)
	for _, rr := range requests {
		byOrder[rr.OrderID] = append(byOrder[rr.OrderID], rr)
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, buildView(actor, o, byOrder[o.ID]))
	}
	return views, nil
}

func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter repository.OrderFilter) ([]*domain.Order, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, filter)
}

// CancelOrder files the owner's cancellation request.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, id uuid.UUID) (*OrderView, error) {
	if err := actor.requireUser(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, "cancel_request", func(o *domain.Order) error {
		if !o.OwnedBy(actor.UserID) {
			return ErrForbidden
		}
		return domain.RequestCancellation(o)
	})
}

// UpdateStatus moves an order along the lifecycle on behalf of an admin.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status string) (*OrderView, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	to := domain.ParseStatus(status)
	if to == domain.OrderStatusUnknown {
		return nil, &domain.ValidationError{Field: "status", Code: "invalid_status", Message: fmt.Sprintf("unknown order status %q", status)}
	}
	return s.mutate(ctx, actor, id, "update_status", func(o *domain.Order) error {
		return domain.Transition(o, to)
	})
}

func (s *OrderService) AdminCancel(ctx context.Context, actor Actor, id uuid.UUID) (*OrderView, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, "cancel", domain.Cancel)
}

// ResolveCancellation approves or rejects the pending customer request.
func (s *OrderService) ResolveCancellation(ctx context.Context, actor Actor, id uuid.UUID, approve bool) (*OrderView, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	action := "cancel_reject"
	if approve {
		action = "cancel_approve"
	}
	return s.mutate(ctx, actor, id, action, func(o *domain.Order) error {
		return domain.ResolveCancellation(o, approve)
	})
}

func (s *OrderService) MarkReturned(ctx context.Context, actor Actor, id uuid.UUID) (*OrderView, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, "mark_returned", func(o *domain.Order) error {
		return domain.Transition(o, domain.OrderStatusReturned)
	})
}

// InvalidateOrder drops the cached copy of an order; used when another
// instance reports a change.
func (s *OrderService) InvalidateOrder(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, id); err != nil {
		log := logger.FromContext(ctx, s.log)
		log.Warn().Err(err).Str(logger.ORDER, id.String()).Msg("cache invalidate error")
	}
}

// mutate applies fn to a fresh copy of the order and saves it, guarded by
// the order's UpdatedAt. Nothing is written when fn fails.
func (s *OrderService) mutate(ctx context.Context, actor Actor, id uuid.UUID, action string, fn func(*domain.Order) error) (*OrderView, error) {
	log := logger.FromContext(ctx, s.log)

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		s.metrics.Action(action, err)
		return nil, err
	}
	from := order.Status
	version := order.UpdatedAt

	if err := fn(order); err != nil {
		s.metrics.Action(action, err)
		log.Info().Err(err).
			Str(logger.ORDER, id.String()).
			Str("action", action).
			Str("status", from.String()).
			Msg("order action rejected")
		return nil, err
	}

	if err := s.repo.UpdateOrder(ctx, order, version); err != nil {
		s.metrics.Action(action, err)
		return nil, err
	}
	s.invalidate(id)
	s.metrics.Action(action, nil)

	log.Info().
		Str(logger.ORDER, id.String()).
		Str(logger.USER, actor.UserID).
		Str("action", action).
		Str("from", from.String()).
		Str("to", order.Status.String()).
		Str("cancellation", string(order.CancellationStatus)).
		Msg("order updated")
	return s.view(ctx, actor, order)
}

func (s *OrderService) loadOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(id.String(), func() (interface{}, error) {
		order, err := s.cache.Get(ctx, id)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log := logger.FromContext(ctx, s.log)
			log.Warn().Err(err).Str(logger.ORDER, id.String()).Msg("cache get error")
		}

		order, err = s.repo.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}

		go func(o *domain.Order) {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(setCtx, o); errSet != nil {
				s.log.Warn().Err(errSet).Str(logger.ORDER, o.ID.String()).Msg("cache set error")
			}
		}(copyOrder(order))

		return order, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a flight must not share the pointer.
	return copyOrder(v.(*domain.Order)), nil
}

func (s *OrderService) invalidate(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.InvalidateOrder(ctx, id)
}

func (s *OrderService) view(ctx context.Context, actor Actor, order *domain.Order) (*OrderView, error) {
	requests, err := s.repo.ListReturnRequestsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return buildView(actor, order, requests), nil
}

// buildView derives actions and tracker from the order. Customer actions are
// only offered to the owner; admins additionally see the reachable statuses.
func buildView(actor Actor, order *domain.Order, requests []domain.ReturnRequest) *OrderView {
	if requests == nil {
		requests = []domain.ReturnRequest{}
	}
	v := &OrderView{
		Order:          order,
		Tracker:        domain.TrackOrder(order),
		ReturnRequests: requests,
		Actions:        domain.Actions{ReturnableItems: []int64{}},
	}
	if order.OwnedBy(actor.UserID) {
		v.Actions = domain.AllowedActions(order, requests)
	}
	if actor.Admin {
		v.NextStatuses = domain.NextStatuses(order.Status)
	}
	return v
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}
