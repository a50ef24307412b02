package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// ErrNoItems is returned by Run when there is nothing to process.
var ErrNoItems = errors.New("no emails to process")

// Item is one email handed to the per-item function.
type Item struct {
	ID      string
	Content string
}

// ItemFunc processes one item. Failures are expressed in the returned
// Result, never by panicking or aborting the run.
type ItemFunc func(ctx context.Context, item Item) Result

// Progress is reported after every finished item.
type Progress struct {
	Processed int
	Total     int
	Last      Result
	Results   Totals
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Coordinator runs items in chunks.
type Coordinator struct {
	size     int
	pause    time.Duration
	sleep    Sleeper
	progress ProgressFunc
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPause sets the wait between chunks.
func WithPause(d time.Duration) Option {
	return func(c *Coordinator) { c.pause = d }
}

// WithSleeper replaces the inter-chunk wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Coordinator) { c.sleep = s }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// WithMetrics records item outcomes on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New returns a coordinator with the given chunk size. Sizes below one are
// treated as one.
func New(size int, opts ...Option) *Coordinator {
	if size < 1 {
		size = 1
	}
	c := &Coordinator{size: size, sleep: sleepContext}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "batch")
	return c
}

// Size returns the chunk size.
func (c *Coordinator) Size() int {
	return c.size
}

// Run processes items in ceil(len(items)/size) chunks. It returns the report
// so far together with ctx.Err() if the context ends between chunks.
func (c *Coordinator) Run(ctx context.Context, items []Item, fn ItemFunc) (*Report, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	ctx, span := instrumentation.StartSpan(ctx, "batch.run",
		instrumentation.NewSpanAttributeBuilder().WithBatch(len(items), c.size).Build()...)
	var runErr error
	defer func() { instrumentation.EndSpan(span, runErr) }()

	report := &Report{
		Total: len(items),
		Items: make([]Result, len(items)),
	}
	var mu sync.Mutex

	for start := 0; start < len(items); start += c.size {
		if start > 0 && c.pause > 0 {
			if runErr = c.sleep(ctx, c.pause); runErr != nil {
				report.Items = compact(report.Items, report.Processed)
				return report, runErr
			}
		}
		if runErr = ctx.Err(); runErr != nil {
			report.Items = compact(report.Items, report.Processed)
			return report, runErr
		}

		end := min(start+c.size, len(items))
		report.Chunks++
		c.logger.Debug("processing chunk",
			slog.Int("chunk", report.Chunks),
			slog.Int("from", start),
			slog.Int("to", end))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				res := fn(ctx, items[i])
				if res.ID == "" {
					res.ID = items[i].ID
				}
				c.metrics.RecordBatchItem(ctx, string(res.Outcome))

				mu.Lock()
				defer mu.Unlock()
				report.Items[i] = res
				report.Processed++
				report.Results.add(res.Outcome)
				if c.progress != nil {
					c.progress(Progress{
						Processed: report.Processed,
						Total:     report.Total,
						Last:      res,
						Results:   report.Results,
					})
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	c.logger.Info("batch finished",
		slog.Int("processed", report.Processed),
		slog.Int("labeled", report.Results.Labeled),
		slog.Int("skipped", report.Results.Skipped),
		slog.Int("failed", report.Results.Failed))
	return report, nil
}

// compact drops the unprocessed tail of a cancelled run. Items finish whole
// chunks at a time, so the first n slots are exactly the processed ones.
func compact(items []Result, n int) []Result {
	return items[:n]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
