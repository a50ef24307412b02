package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
)

const (
	// DefaultMetricsAddr keeps the scrape endpoint off the network unless
	// --metrics-addr says otherwise.
	DefaultMetricsAddr = "127.0.0.1:9090"

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	metricsReadHeaderTimeout = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
)

// ErrNoGatherer is returned when the provider pushes metrics instead of
// exposing them for scraping.
var ErrNoGatherer = errors.New("metrics exporter does not expose a scrape endpoint")

// MetricsServer serves the labeler's Prometheus series on their own
// listener, apart from the relay.
type MetricsServer struct {
	addr    string
	handler http.Handler

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// NewMetricsServer returns a server for the series gathered by provider.
// An empty addr means DefaultMetricsAddr.
func NewMetricsServer(addr string, provider *instrumentation.Provider) (*MetricsServer, error) {
	if provider == nil || !provider.Enabled() {
		return nil, fmt.Errorf("instrumentation is disabled")
	}
	gatherer := provider.Gatherer()
	if gatherer == nil {
		return nil, ErrNoGatherer
	}
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	return &MetricsServer{addr: addr, handler: metricsHandler(gatherer)}, nil
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Handler returns the /metrics and /healthz routes.
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Listen binds the listener, so a busy port fails here rather than inside
// the serving goroutine.
func (s *MetricsServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
	}
	s.mu.Unlock()
	return nil
}

// Serve serves on the listener bound by Listen until Shutdown.
func (s *MetricsServer) Serve() error {
	s.mu.Lock()
	ln, srv := s.ln, s.srv
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("metrics server is not listening")
	}
	slog.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address after Listen, else the configured one.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server. It is a no-op before Listen.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln, srv := s.ln, s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	// Shutdown only closes listeners Serve has started on.
	_ = ln.Close()
	return err
}
