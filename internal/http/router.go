package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/health"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Dependencies struct {
	Orders         OrderService
	Returns        ReturnService
	Addresses      addressbook.Book
	Subscriptions  http.Handler // websocket endpoint for admin dashboards
	OrderIntake    bool         // accept orders over HTTP instead of the checkout topic
	Health         *health.Registry
	Metrics        *metrics.Metrics
	Auth           *Authenticator
	RequestTimeout time.Duration
	MaxUploadSize  int64
	Log            zerolog.Logger
}

func NewRouter(d Dependencies) http.Handler {
	log := logger.Component(d.Log, "http")
	orders := NewOrdersHandler(d.Orders, log)
	returns := NewReturnsHandler(d.Returns, d.MaxUploadSize, log)
	addresses := NewAddressesHandler(d.Addresses, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	if d.Health != nil {
		d.Health.Routes(r)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		// Long-lived; kept out of the timeout and compression middleware.
		if d.Subscriptions != nil {
			r.With(requireAdmin).Handle("/ws/orders", d.Subscriptions)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))
			r.Use(middleware.Compress(5))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orders.ListOrders)
				if d.OrderIntake {
					r.With(requireAdmin).Post("/", orders.PlaceOrder)
				}
				r.Get("/myorders", orders.ListMyOrders)
				r.Get("/{order_id}", orders.GetOrder)
				r.Put("/{order_id}/cancel", orders.CancelOrder)
				r.Put("/{order_id}/status", orders.UpdateStatus)
				r.Put("/{order_id}/cancellation", orders.ResolveCancellation)
				r.Put("/{order_id}/returned", orders.MarkReturned)
			})

			r.Route("/return-requests", func(r chi.Router) {
				r.Post("/", returns.Create)
				r.Get("/", returns.ListAll)
				r.Get("/my", returns.ListMine)
				r.Put("/{id}/status", returns.Decide)
				r.Get("/{id}/images/{image_id}", returns.Image)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", addresses.List)
				r.Post("/", addresses.Create)
				r.Delete("/{id}", addresses.Delete)
				r.Put("/{id}/default", addresses.SetDefault)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			reqLog := logger.FromContext(r.Context(), log)
			reqLog.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
