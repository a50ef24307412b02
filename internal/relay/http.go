package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxRequestBody = 1 << 20

// Hub fans batch training notifications out to event stream subscribers.
// Slow subscribers drop events rather than block the job.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Response]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Response]struct{})}
}

// Publish implements Notifier.
func (h *Hub) Publish(_ context.Context, event Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events and a function that releases it.
func (h *Hub) Subscribe(buffer int) (<-chan Response, func()) {
	ch := make(chan Response, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Handler serves the relay over HTTP.
//
// POST takes a JSON Request and replies with the JSON Response. A bearer
// token in the Authorization header is used when the body carries none.
// GET with "Accept: text/event-stream" streams batch training notifications.
type Handler struct {
	d   *Dispatcher
	hub *Hub
}

// NewHandler creates an HTTP handler for d. Notifications go to hub.
func NewHandler(d *Dispatcher, hub *Hub) *Handler {
	if hub == nil {
		hub = NewHub()
	}
	return &Handler{d: d, hub: hub}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		h.d.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
	}()

	switch {
	case r.Method == http.MethodPost:
		h.serveAction(rec, r)
	case r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/event-stream"):
		h.serveEvents(rec, r)
	default:
		rec.Header().Set("Allow", "GET, POST")
		writeJSON(rec, http.StatusMethodNotAllowed, errorResponse(fmt.Errorf("method %s not allowed", r.Method)))
	}
}

func (h *Handler) serveAction(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(fmt.Errorf("invalid request: %w", err)))
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}
	writeJSON(w, http.StatusOK, h.d.Handle(r.Context(), req, h.hub.Publish))
}

func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse(fmt.Errorf("streaming unsupported")))
		return
	}
	events, release := h.hub.Subscribe(64)
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.d.logger.Warn("failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %v\ndata: %s\n\n", ev["action"], data)
			flusher.Flush()
		}
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
