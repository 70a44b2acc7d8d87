package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, in service.NewOrder) (*domain.Order, error)
	GetOrder(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderView, error)
	ListMyOrders(ctx context.Context, actor service.Actor) ([]*service.OrderView, error)
	ListOrders(ctx context.Context, actor service.Actor, filter repository.OrderFilter) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderView, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id uuid.UUID, status string) (*service.OrderView, error)
	AdminCancel(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderView, error)
	ResolveCancellation(ctx context.Context, actor service.Actor, id uuid.UUID, approve bool) (*service.OrderView, error)
	MarkReturned(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderView, error)
}

type OrdersHandler struct {
	orders OrderService
	log    zerolog.Logger
}

func NewOrdersHandler(orders OrderService, log zerolog.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, log: log}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type CancellationDecisionDTO struct {
	Approve *bool `json:"approve"`
}

// PlaceOrderRequestDTO mirrors the checkout-completed event, for
// deployments that run without the checkout topic.
type PlaceOrderRequestDTO struct {
	CheckoutID      uuid.UUID          `json:"checkout_id"`
	UserID          string             `json:"user_id"`
	Items           []domain.OrderItem `json:"items"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	TotalAmount     float64            `json:"total_amount"`
	Currency        string             `json:"currency"`
}

// POST /api/v1/orders (admin; only mounted when orders are not consumed from Kafka)
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	order, err := h.orders.PlaceOrder(r.Context(), service.NewOrder{
		CheckoutID:      req.CheckoutID,
		UserID:          req.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders/myorders
func (h *OrdersHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListMyOrders(r.Context(), actorFrom(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// GET /api/v1/orders?status=&q=&limit=&offset=
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{Search: q.Get("q")}

	if s := q.Get("status"); s != "" {
		filter.Status = domain.ParseStatus(s)
		if filter.Status == domain.OrderStatusUnknown {
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
			return
		}
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	view, err := h.orders.GetOrder(r.Context(), actorFrom(r.Context()), id)
	h.respondView(w, r, view, err)
}

// PUT /api/v1/orders/{order_id}/cancel
// Customers file a cancellation request; admins cancel outright.
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	actor := actorFrom(r.Context())
	var (
		view *service.OrderView
		err  error
	)
	if actor.Admin {
		view, err = h.orders.AdminCancel(r.Context(), actor, id)
	} else {
		view, err = h.orders.CancelOrder(r.Context(), actor, id)
	}
	h.respondView(w, r, view, err)
}

// PUT /api/v1/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	view, err := h.orders.UpdateStatus(r.Context(), actorFrom(r.Context()), id, req.Status)
	h.respondView(w, r, view, err)
}

// PUT /api/v1/orders/{order_id}/cancellation
func (h *OrdersHandler) ResolveCancellation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	var req CancellationDecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Approve == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "approve is required")
		return
	}
	view, err := h.orders.ResolveCancellation(r.Context(), actorFrom(r.Context()), id, *req.Approve)
	h.respondView(w, r, view, err)
}

// PUT /api/v1/orders/{order_id}/returned
func (h *OrdersHandler) MarkReturned(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	view, err := h.orders.MarkReturned(r.Context(), actorFrom(r.Context()), id)
	h.respondView(w, r, view, err)
}

func (h *OrdersHandler) respondView(w http.ResponseWriter, r *http.Request, view *service.OrderView, err error) {
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", name+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
