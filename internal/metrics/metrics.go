package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the service's collectors on their own registry, so tests can
// create as many as they like.
type Metrics struct {
	Registry        *prometheus.Registry
	OrderActions    *prometheus.CounterVec
	ReturnRequests  *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	EventsBroadcast prometheus.Counter
	WSClients       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		OrderActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_actions_total",
			Help:      "Order lifecycle actions by action and result.",
		}, []string{"action", "result"}),
		ReturnRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_requests_total",
			Help:      "Return and exchange requests created, by type.",
		}, []string{"type"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Outbox events published to Kafka, by result.",
		}, []string{"result"}),
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_broadcast_total",
			Help:      "Order events pushed to websocket subscribers.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket subscribers.",
		}),
	}
	reg.MustRegister(
		m.OrderActions,
		m.ReturnRequests,
		m.EventsPublished,
		m.EventsBroadcast,
		m.WSClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Action records the outcome of an order action; err == nil counts as "ok".
func (m *Metrics) Action(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OrderActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
