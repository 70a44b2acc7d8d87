package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/kafka-go"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                     `json:"status"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// Registry runs the registered checkers for the health endpoints.
type Registry struct {
	version  string
	mu       sync.RWMutex
	checkers []Checker
}

func NewRegistry(version string) *Registry {
	return &Registry{version: version}
}

func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

// Routes mounts /health, /health/live and /health/ready.
func (r *Registry) Routes(router chi.Router) {
	router.Get("/health", r.healthHandler)
	router.Get("/health/live", r.livenessHandler)
	router.Get("/health/ready", r.readinessHandler)
}

func (r *Registry) run(ctx context.Context) (Status, map[string]ComponentHealth) {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(checkers))
	overall := StatusHealthy
	for _, c := range checkers {
		h := c.Check(ctx)
		components[c.Name()] = h
		switch {
		case h.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case h.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return overall, components
}

func (r *Registry) healthHandler(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
	defer cancel()

	overall, components := r.run(ctx)
	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, Response{
		Status:     overall,
		Version:    r.version,
		Timestamp:  time.Now().UTC(),
		Components: components,
	})
}

func (r *Registry) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// readinessHandler fails only on unhealthy components; degraded is still ready.
func (r *Registry) readinessHandler(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
	defer cancel()

	overall, _ := r.run(ctx)
	if overall == StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// PingChecker reports a dependency through its ping function. A failing
// optional dependency degrades the service instead of taking it down.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func NewOptionalChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: true}
}

func (p *PingChecker) Name() string {
	return p.name
}

func (p *PingChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := p.ping(ctx)
	latency := time.Since(start)

	if err != nil {
		status := StatusUnhealthy
		if p.optional {
			status = StatusDegraded
		}
		return ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("%s unreachable: %v", p.name, err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{Status: StatusHealthy, Latency: latency.String()}
}

// KafkaPing dials the first reachable broker.
func KafkaPing(brokers ...string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var lastErr error
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no brokers configured")
		}
		return lastErr
	}
}
