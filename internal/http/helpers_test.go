package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/health"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	customerID   = "user-1"
	strangerID   = "user-2"
	adminID      = "admin-1"
	pngSignature = "\x89PNG\r\n\x1a\n"
)

type testServer struct {
	*httptest.Server
	store *repository.MemoryStore
	book  *addressbook.MemoryBook
	hub   *events.Hub
	auth  *Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

// newTestServerWith lets a test adjust the router dependencies before start.
func newTestServerWith(t *testing.T, configure func(*Dependencies)) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	book := addressbook.NewMemoryBook()
	m := metrics.New()
	hub := events.NewHub(m, zerolog.Nop())
	auth := NewAuthenticator(testSecret)

	deps := Dependencies{
		Orders:         service.NewOrderService(store, cache.Nop{}, m, zerolog.Nop()),
		Returns:        service.NewReturnService(store, cache.Nop{}, storage.NewMemoryStore(), book, m, zerolog.Nop()),
		Addresses:      book,
		Subscriptions:  http.HandlerFunc(hub.ServeWS),
		Health:         health.NewRegistry("test"),
		Metrics:        m,
		Auth:           auth,
		RequestTimeout: 5 * time.Second,
		MaxUploadSize:  10 << 20,
		Log:            zerolog.Nop(),
	}
	if configure != nil {
		configure(&deps)
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, store: store, book: book, hub: hub, auth: auth}
}

func (s *testServer) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	tok, err := s.auth.Issue(userID, admin, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) seedOrder(t *testing.T, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:         uuid.New(),
		CheckoutID: uuid.New(),
		UserID:     customerID,
		Status:     status,
		Items: []domain.OrderItem{
			{ProductID: 10, ProductName: "Linen Shirt", Quantity: 1, Price: 35.5, Size: "M"},
			{ProductID: 11, ProductName: "Wool Socks", Quantity: 2, Price: 6.25},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
		TotalAmount:     48,
		Currency:        "USD",
	}
	require.NoError(t, s.store.CreateOrder(context.Background(), order))
	return order
}

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

type imagePart struct {
	name string
	data []byte
}

// returnForm builds the multipart body the storefront sends for a return request.
func returnForm(t *testing.T, fields map[string]string, images ...imagePart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+img.name+`"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(img.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (s *testServer) postReturn(t *testing.T, token string, fields map[string]string, images ...imagePart) *http.Response {
	t.Helper()
	body, contentType := returnForm(t, fields, images...)
	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/return-requests/", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pngImage(name string) imagePart {
	return imagePart{name: name, data: append([]byte(pngSignature), bytes.Repeat([]byte{0x42}, 64)...)}
}

func pickupJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(testAddress())
	require.NoError(t, err)
	return string(raw)
}
