// Package client is the Go client for the storefront REST API, used by the
// storefront and admin front-ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/google/uuid"
)

type (
	Order         = domain.Order
	OrderView     = domain.OrderView
	ReturnRequest = domain.ReturnRequest
	ReturnDraft   = domain.ReturnDraft
	Address       = domain.Address
	SavedAddress  = domain.SavedAddress
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("storefront: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("storefront: %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Client calls the API once per method; failures are returned to the caller
// as they are and never retried.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	breaker *circuitbreaker.Breaker[[]byte]
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithBreaker(s circuitbreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(s) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: newBreaker(circuitbreaker.DefaultSettings("storefront-api")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newBreaker only counts transport errors and 5xx answers; a 4xx means the
// backend is up and said no.
func newBreaker(s circuitbreaker.Settings) *circuitbreaker.Breaker[[]byte] {
	s.IsSuccessful = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Status < http.StatusInternalServerError
		}
		return err == nil || errors.Is(err, context.Canceled)
	}
	return circuitbreaker.New[[]byte](s)
}

func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	var view OrderView
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders/"+id.String(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) ListMyOrders(ctx context.Context) ([]*OrderView, error) {
	var views []*OrderView
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders/myorders", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

type ListOrdersParams struct {
	Status string
	Query  string
	Limit  int
	Offset int
}

func (p ListOrdersParams) encode() string {
	v := url.Values{}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.Query != "" {
		v.Set("q", p.Query)
	}
	if p.Limit > 0 {
		v.Set("limit", fmt.Sprint(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", fmt.Sprint(p.Offset))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// ListOrders is the admin order list.
func (c *Client) ListOrders(ctx context.Context, p ListOrdersParams) ([]Order, error) {
	var orders []Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders"+p.encode(), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder files a cancellation request, or cancels outright with an admin token.
func (c *Client) CancelOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	return c.orderAction(ctx, id, "cancel", nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*OrderView, error) {
	return c.orderAction(ctx, id, "status", map[string]string{"status": status})
}

func (c *Client) ResolveCancellation(ctx context.Context, id uuid.UUID, approve bool) (*OrderView, error) {
	return c.orderAction(ctx, id, "cancellation", map[string]bool{"approve": approve})
}

func (c *Client) MarkReturned(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	return c.orderAction(ctx, id, "returned", nil)
}

func (c *Client) orderAction(ctx context.Context, id uuid.UUID, action string, body any) (*OrderView, error) {
	var view OrderView
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/orders/"+id.String()+"/"+action, body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) ListMyReturnRequests(ctx context.Context) ([]ReturnRequest, error) {
	var list []ReturnRequest
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/return-requests/my", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) ListReturnRequests(ctx context.Context, status string) ([]ReturnRequest, error) {
	path := "/api/v1/return-requests"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var list []ReturnRequest
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) DecideReturnRequest(ctx context.Context, id uuid.UUID, status, note string) (*ReturnRequest, error) {
	body := map[string]string{"status": status, "admin_note": note}
	var rr ReturnRequest
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/return-requests/"+id.String()+"/status", body, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

func (c *Client) ListAddresses(ctx context.Context) ([]SavedAddress, error) {
	var list []SavedAddress
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/addresses", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) SaveAddress(ctx context.Context, addr Address) (*SavedAddress, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	var saved SavedAddress
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/addresses", addr, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var (
		r           io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, r, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if httpResp.StatusCode >= http.StatusBadRequest {
			return nil, decodeError(httpResp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
		apiErr.Details = body.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
