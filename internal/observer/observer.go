package observer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Defaults.
const (
	DefaultCacheSize = 1000
	DefaultInterval  = 2 * time.Second
	DefaultQueueSize = 256
	// maxDrain bounds how many queued rows one Handler call receives.
	maxDrain = 50
)

// ErrRunning is returned when Run is called on an Observer that is already
// running.
var ErrRunning = errors.New("observer is already running")

// Lister returns the rows currently shown on the page.
type Lister interface {
	VisibleEmails(ctx context.Context, selectedOnly bool) ([]locator.VisibleEmail, error)
}

// Handler receives newly seen rows, in page order. It runs on the single
// consumer goroutine.
type Handler func(ctx context.Context, emails []locator.VisibleEmail)

// Observer reports rows that appear on the page.
type Observer struct {
	lister   Lister
	handler  Handler
	seen     *lru.Cache[string, struct{}]
	interval time.Duration
	queue    chan locator.VisibleEmail
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// Option configures an Observer.
type Option func(*options)

type options struct {
	cacheSize int
	interval  time.Duration
	queueSize int
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// WithCacheSize bounds the number of remembered rows.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithQueueSize bounds the number of rows waiting for the handler. Rows that
// do not fit are dropped and picked up again by a later poll.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithMetrics records observer events on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the observer logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an Observer. A nil handler logs new rows and does nothing else.
func New(lister Lister, handler Handler, opts ...Option) (*Observer, error) {
	o := options{
		cacheSize: DefaultCacheSize,
		interval:  DefaultInterval,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval <= 0 {
		o.interval = DefaultInterval
	}
	if o.queueSize < 1 {
		o.queueSize = 1
	}

	seen, err := lru.New[string, struct{}](o.cacheSize)
	if err != nil {
		return nil, err
	}

	obs := &Observer{
		lister:   lister,
		handler:  handler,
		seen:     seen,
		interval: o.interval,
		queue:    make(chan locator.VisibleEmail, o.queueSize),
		metrics:  o.metrics,
		logger:   logging.WithComponent(o.logger, "observer"),
	}
	if obs.handler == nil {
		obs.handler = obs.logNew
	}
	return obs, nil
}

// Seen returns the number of remembered rows.
func (o *Observer) Seen() int {
	return o.seen.Len()
}

// Run polls until ctx is cancelled. Rows already queued when ctx ends are
// discarded.
func (o *Observer) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrRunning
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.logger.Info("observer started", "interval", o.interval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.consume(ctx)
	}()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		if _, err := o.Poll(ctx); err != nil && ctx.Err() == nil {
			o.logger.Debug("poll failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			o.logger.Info("observer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll scans the page once and queues unseen rows. It returns how many were
// queued.
func (o *Observer) Poll(ctx context.Context) (int, error) {
	emails, err := o.lister.VisibleEmails(ctx, false)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, e := range emails {
		key := dedupKey(e)
		if key == "" {
			continue
		}
		if found, _ := o.seen.ContainsOrAdd(key, struct{}{}); found {
			o.metrics.RecordObserverEvent(ctx, instrumentation.ObserverDuplicate)
			continue
		}

		select {
		case o.queue <- e:
			queued++
			o.metrics.RecordObserverEvent(ctx, instrumentation.ObserverNew)
		default:
			// Forget it so the next poll retries.
			o.seen.Remove(key)
			o.metrics.RecordObserverEvent(ctx, instrumentation.ObserverDropped)
		}
	}
	return queued, nil
}

// consume is the single consumer of the queue.
func (o *Observer) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-o.queue:
			batch := []locator.VisibleEmail{e}
		drain:
			for len(batch) < maxDrain {
				select {
				case next := <-o.queue:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			o.handler(ctx, batch)
		}
	}
}

func (o *Observer) logNew(_ context.Context, emails []locator.VisibleEmail) {
	for _, e := range emails {
		subject, _ := e.Split()
		o.logger.Info("new email", logging.Thread(e.ThreadID), "subject", logging.Truncate(subject, 80))
	}
}

// dedupKey identifies a row across polls. Synthetic ids are positional, so
// those rows are keyed by content instead.
func dedupKey(e locator.VisibleEmail) string {
	if e.ThreadID == "" {
		return ""
	}
	if e.Synthetic() {
		if e.Content == "" {
			return ""
		}
		return "content:" + e.Content
	}
	return e.ThreadID
}
