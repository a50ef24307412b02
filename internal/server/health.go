package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthChecker answers liveness and readiness checks for the relay.
// Readiness covers the labeler's collaborators: the classification service
// and, when enabled, the history database.
type HealthChecker struct {
	sc        *ServerContext
	startTime time.Time
	ready     atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker returns a checker for sc with a readiness check per
// collaborator sc is wired to. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now(), checks: map[string]CheckFunc{}}
	h.ready.Store(true)

	if sc == nil {
		return h
	}
	if cls := sc.Classifier(); cls != nil {
		h.checks["classifier"] = cls.Status
	}
	if store := sc.History(); store != nil {
		h.checks["history"] = store.Ping
	}
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddCheck registers a readiness check. A failing check makes /readyz
// report not ready; it never affects liveness.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// runChecks runs every check with its own timeout and returns the results
// by name.
func (h *HealthChecker) runChecks(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names)+2)
	ok := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
		err := checks[name](cctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			ok = false
			continue
		}
		results[name] = healthStatusOK
	}
	return results, ok
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LabelerStatus summarizes what the relay has been doing.
type LabelerStatus struct {
	ObserverRunning bool           `json:"observerRunning"`
	ObserverSeen    int            `json:"observerSeen"`
	EventListeners  int            `json:"eventListeners"`
	Outcomes        map[string]int `json:"outcomes,omitempty"`
}

// DetailedHealthResponse is the /healthz/detailed body.
type DetailedHealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
	Labeler *LabelerStatus    `json:"labeler,omitempty"`
}

// LivenessHandler serves /healthz. It only says the process is up.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, code, checks := h.evaluate(r.Context())
		writeHealth(w, code, HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed: readiness plus observer,
// relay and history figures.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, code, checks := h.evaluate(r.Context())
		writeHealth(w, code, DetailedHealthResponse{
			Status:  status,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:  checks,
			Labeler: h.labelerStatus(r.Context()),
		})
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func (h *HealthChecker) evaluate(ctx context.Context) (string, int, map[string]string) {
	checks, ok := h.runChecks(ctx)

	checks["ready"] = healthStatusOK
	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}
	checks["shutdown"] = healthStatusOK
	if h.shuttingDown() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}

	if !ok {
		return healthStatusNotReady, http.StatusServiceUnavailable, checks
	}
	return healthStatusOK, http.StatusOK, checks
}

func (h *HealthChecker) labelerStatus(ctx context.Context) *LabelerStatus {
	if h.sc == nil {
		return nil
	}
	st := &LabelerStatus{
		ObserverRunning: h.sc.ObserverRunning(),
		EventListeners:  h.sc.Hub().Subscribers(),
	}
	if obs := h.sc.Observer(); obs != nil {
		st.ObserverSeen = obs.Seen()
	}
	if store := h.sc.History(); store != nil {
		if counts, err := store.CountByOutcome(ctx); err == nil {
			st.Outcomes = counts
		}
	}
	return st
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
