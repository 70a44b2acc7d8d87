package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	storehttp "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	url   string
	store *repository.MemoryStore
	auth  *storehttp.Authenticator
	calls atomic.Int64
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		store: repository.NewMemoryStore(),
		auth:  storehttp.NewAuthenticator("client-test-secret"),
	}
	m := metrics.New()
	book := addressbook.NewMemoryBook()
	router := storehttp.NewRouter(storehttp.Dependencies{
		Orders:         service.NewOrderService(b.store, cache.Nop{}, m, zerolog.Nop()),
		Returns:        service.NewReturnService(b.store, cache.Nop{}, storage.NewMemoryStore(), book, m, zerolog.Nop()),
		Addresses:      book,
		Auth:           b.auth,
		RequestTimeout: 5 * time.Second,
		MaxUploadSize:  10 << 20,
		Log:            zerolog.Nop(),
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	b.url = srv.URL
	return b
}

func (b *backend) client(t *testing.T, userID string, admin bool) *Client {
	t.Helper()
	tok, err := b.auth.Issue(userID, admin, time.Hour)
	require.NoError(t, err)
	return New(b.url, WithToken(tok))
}

func (b *backend) placeOrder(t *testing.T, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:         uuid.New(),
		CheckoutID: uuid.New(),
		UserID:     "user-1",
		Status:     status,
		Items: []domain.OrderItem{
			{ProductID: 5, ProductName: "Rain Jacket", Quantity: 1, Price: 89},
		},
		ShippingAddress: pickup(),
		PaymentMethod:   "cod",
		TotalAmount:     89,
		Currency:        "USD",
	}
	require.NoError(t, b.store.CreateOrder(context.Background(), order))
	return order
}

func pickup() domain.Address {
	return domain.Address{
		FullName:   "Jane Doe",
		Phone:      "+1 555 0100",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "62701",
		Country:    "US",
	}
}

func TestPlaceThenCancel(t *testing.T) {
	b := newBackend(t)
	order := b.placeOrder(t, domain.OrderStatusPending)
	c := b.client(t, "user-1", false)
	ctx := context.Background()

	view, err := c.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, view.Order.Status)
	assert.True(t, view.Actions.Cancel)
	assert.False(t, view.Actions.Return)

	view, err = c.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, view.Actions.Cancel)
	assert.False(t, view.Actions.Return)
	assert.Empty(t, view.Actions.ReturnableItems)

	// A fresh read agrees with the mutation response.
	view, err = c.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CancellationRequested, view.Order.CancellationStatus)
	assert.False(t, view.Actions.Cancel)
	assert.Equal(t, domain.StepCancellationRequested, view.Tracker.CurrentLabel)

	_, err = c.CancelOrder(ctx, order.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "action_not_allowed", apiErr.Code)
}

func TestCreateReturnRequest_ValidatedLocally(t *testing.T) {
	b := newBackend(t)
	order := b.placeOrder(t, domain.OrderStatusDelivered)
	c := b.client(t, "user-1", false)

	draft := ReturnDraft{
		OrderID:       order.ID,
		ProductID:     5,
		Type:          domain.ReturnTypeReturn,
		Reason:        domain.ReasonDefective,
		PickupAddress: pickup(),
	}

	_, err := c.CreateReturnRequest(context.Background(), ReturnInput{Draft: draft})
	assert.ErrorIs(t, err, domain.ErrImagesRequired)

	_, err = c.CreateReturnRequest(context.Background(), ReturnInput{Draft: ReturnDraft{OrderID: order.ID}})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.CreateReturnRequest(context.Background(), ReturnInput{Draft: draft, Images: make([]Image, 6)})
	assert.ErrorIs(t, err, storage.ErrTooManyImages)

	assert.Zero(t, b.calls.Load(), "invalid drafts must not reach the network")
}

func TestReturnRequestFlow(t *testing.T) {
	b := newBackend(t)
	order := b.placeOrder(t, domain.OrderStatusDelivered)
	customer := b.client(t, "user-1", false)
	admin := b.client(t, "admin-1", true)
	ctx := context.Background()

	rr, err := customer.CreateReturnRequest(ctx, ReturnInput{
		Draft: ReturnDraft{
			OrderID:       order.ID,
			ProductID:     5,
			Type:          domain.ReturnTypeExchange,
			Reason:        domain.ReasonDefective,
			NewColor:      "Olive",
			PickupAddress: pickup(),
		},
		Images: []Image{{Name: "tear.png", Data: []byte("\x89PNG\r\n\x1a\n0000000000000000")}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusPending, rr.Status)
	assert.Equal(t, "Olive", rr.NewColor)
	require.Len(t, rr.Images, 1)

	view, err := customer.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, view.Actions.Return)

	pending, err := admin.ListReturnRequests(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	decided, err := admin.DecideReturnRequest(ctx, rr.ID, "approved", "refund issued")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusApproved, decided.Status)

	mine, err := customer.ListMyReturnRequests(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "refund issued", mine[0].AdminNote)

	returned, err := admin.MarkReturned(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReturned, returned.Order.Status)

	_, err = customer.ListReturnRequests(ctx, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "forbidden", apiErr.Code)
}

func TestReturnRequest_SavedAddress(t *testing.T) {
	b := newBackend(t)
	order := b.placeOrder(t, domain.OrderStatusDelivered)
	c := b.client(t, "user-1", false)
	ctx := context.Background()

	saved, err := c.SaveAddress(ctx, pickup())
	require.NoError(t, err)
	assert.True(t, saved.IsDefault)

	list, err := c.ListAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	rr, err := c.CreateReturnRequest(ctx, ReturnInput{
		Draft: ReturnDraft{
			OrderID:   order.ID,
			ProductID: 5,
			Type:      domain.ReturnTypeReturn,
			Reason:    domain.ReasonChangedMind,
		},
		AddressID: saved.ID.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, pickup(), rr.PickupAddress)
}

func TestAdminOrderManagement(t *testing.T) {
	b := newBackend(t)
	order := b.placeOrder(t, domain.OrderStatusPending)
	b.placeOrder(t, domain.OrderStatusDelivered)
	admin := b.client(t, "admin-1", true)
	ctx := context.Background()

	all, err := admin.ListOrders(ctx, ListOrdersParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := admin.ListOrders(ctx, ListOrdersParams{Status: "Pending", Query: "rain jacket"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.ID, pending[0].ID)

	for _, next := range []string{"Processing", "Dispatched", "Out for Delivery", "Delivered"} {
		view, err := admin.UpdateStatus(ctx, order.ID, next)
		require.NoError(t, err, next)
		assert.Equal(t, domain.ParseStatus(next), view.Order.Status)
	}

	_, err = admin.UpdateStatus(ctx, order.ID, "Pending")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "illegal_transition", apiErr.Code)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/api/v1/return-requests/my" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"no","code":"forbidden"}`))
			return
		}
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, WithBreaker(circuitbreaker.Settings{
		Name:                "test",
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	}))
	ctx := context.Background()

	// Client errors leave the breaker closed.
	for i := 0; i < 3; i++ {
		_, err := c.ListMyReturnRequests(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "forbidden", apiErr.Code)
	}

	for i := 0; i < 2; i++ {
		_, err := c.ListMyOrders(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "upstream exploded", apiErr.Message)
	}

	before := calls.Load()
	_, err := c.ListMyOrders(ctx)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, before, calls.Load())
}
