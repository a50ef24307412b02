package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/history"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/observer"
	"github.com/teemow/inboxlabeler/internal/relay"
)

// ServerContext holds the services shared by the relay transports and the
// background observer.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	labeler     *labeler.Service
	dispatcher  *relay.Dispatcher
	hub         *relay.Hub
	classifier  *classifier.Client
	history     *history.Store
	observer    *observer.Observer
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	closers     []func()
	logger      *slog.Logger

	observerDone    chan error
	observerRunning atomic.Bool
	mu           sync.RWMutex
	shutdown     bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithClassifier sets the classification service client.
func WithClassifier(c *classifier.Client) Option {
	return func(sc *ServerContext) { sc.classifier = c }
}

// WithHistory sets the history store. It is closed on Shutdown.
func WithHistory(h *history.Store) Option {
	return func(sc *ServerContext) { sc.history = h }
}

// WithObserver sets the page observer started by StartObserver.
func WithObserver(o *observer.Observer) Option {
	return func(sc *ServerContext) { sc.observer = o }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = a }
}

// WithCloser registers a function run on Shutdown, after the services
// have stopped. Closers run in reverse registration order.
func WithCloser(fn func()) Option {
	return func(sc *ServerContext) { sc.closers = append(sc.closers, fn) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = l }
}

// NewServerContext creates a server context around svc. The relay
// dispatcher is built from svc and the configured instrumentation.
func NewServerContext(ctx context.Context, svc *labeler.Service, opts ...Option) (*ServerContext, error) {
	if svc == nil {
		return nil, errors.New("labeler service is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		labeler: svc,
		hub:     relay.NewHub(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}

	sc.dispatcher = relay.NewDispatcher(svc,
		relay.WithMetrics(sc.metrics),
		relay.WithAuditLogger(sc.auditLogger),
		relay.WithLogger(sc.logger),
	)
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Labeler returns the labeling service.
func (sc *ServerContext) Labeler() *labeler.Service {
	return sc.labeler
}

// Dispatcher returns the relay dispatcher.
func (sc *ServerContext) Dispatcher() *relay.Dispatcher {
	return sc.dispatcher
}

// Hub returns the notification hub used by the HTTP relay.
func (sc *ServerContext) Hub() *relay.Hub {
	return sc.hub
}

// Classifier returns the classification service client, or nil.
func (sc *ServerContext) Classifier() *classifier.Client {
	return sc.classifier
}

// History returns the history store, or nil when history is disabled.
func (sc *ServerContext) History() *history.Store {
	return sc.history
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Observer returns the page observer, or nil.
func (sc *ServerContext) Observer() *observer.Observer {
	return sc.observer
}

// ObserverRunning reports whether the observer loop is active.
func (sc *ServerContext) ObserverRunning() bool {
	return sc.observerRunning.Load()
}

// RelayHandler returns the HTTP relay handler.
func (sc *ServerContext) RelayHandler() *relay.Handler {
	return relay.NewHandler(sc.dispatcher, sc.hub)
}

// StartObserver runs the observer in the background until Shutdown. It is a
// no-op without an observer.
func (sc *ServerContext) StartObserver() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.observer == nil || sc.observerDone != nil || sc.shutdown {
		return
	}
	done := make(chan error, 1)
	sc.observerDone = done
	sc.observerRunning.Store(true)
	go func() {
		err := sc.observer.Run(sc.ctx)
		sc.observerRunning.Store(false)
		done <- err
	}()
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown stops the observer, waits for background relay and labeler work,
// and releases resources.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	done := sc.observerDone
	sc.mu.Unlock()

	if done != nil {
		if err := <-done; err != nil {
			sc.logger.Warn("observer stopped with error", "error", err)
		}
	}
	sc.dispatcher.Close()
	sc.labeler.Close()

	var errs []error
	if err := sc.history.Close(); err != nil {
		errs = append(errs, err)
	}
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i]()
	}
	return errors.Join(errs...)
}
