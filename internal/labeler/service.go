package labeler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/browser"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/config"
	"github.com/teemow/inboxlabeler/internal/gmail"
	"github.com/teemow/inboxlabeler/internal/history"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// GmailAPI is the part of the Gmail client the labeler uses.
type GmailAPI interface {
	gmail.LabelService
	ModifyThread(ctx context.Context, threadID string, addLabelIDs []string) error
	ModifyMessage(ctx context.Context, messageID string, addLabelIDs []string) error
}

// GmailProvider returns a client authorised for the current request.
type GmailProvider func(ctx context.Context) (GmailAPI, error)

// Classifier predicts labels and learns from examples.
type Classifier interface {
	Predict(ctx context.Context, text string) (classifier.Prediction, error)
	Train(ctx context.Context, text, label string) error
}

// Settings are the tunables of the labeling flows.
type Settings struct {
	SingleThreshold float64
	BatchThreshold  float64
	BatchSize       int
	BatchPause      time.Duration
	RefreshDelay    time.Duration
	MaxRows         int
}

// SettingsFromConfig extracts Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SingleThreshold: cfg.Thresholds.Single,
		BatchThreshold:  cfg.Thresholds.Batch,
		BatchSize:       cfg.Batch.Size,
		BatchPause:      cfg.Batch.Pause,
		RefreshDelay:    cfg.Refresh.Delay,
		MaxRows:         cfg.Locator.MaxRows,
	}
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// Service runs the labeling operations.
type Service struct {
	source     browser.PageSource
	locator    *locator.Locator
	gmail      GmailProvider
	resolver   *gmail.Resolver
	classifier Classifier
	history    history.Recorder
	settings   Settings
	sleep      batch.Sleeper
	metrics    *instrumentation.Metrics
	logger     *slog.Logger

	// bg bounds scheduled refreshes; Close cancels it.
	bg       context.Context
	bgCancel context.CancelFunc
	pending  sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(svc *Service) { svc.settings = s }
}

// WithHistory records every apply attempt on r.
func WithHistory(r history.Recorder) Option {
	return func(svc *Service) { svc.history = r }
}

// WithMetrics records label applications and batch outcomes on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// WithSleeper replaces real waits (batch pauses, refresh delay), for tests.
func WithSleeper(s batch.Sleeper) Option {
	return func(svc *Service) { svc.sleep = s }
}

// WithResolver shares a label resolver between services.
func WithResolver(r *gmail.Resolver) Option {
	return func(svc *Service) { svc.resolver = r }
}

// New creates a Service.
func New(source browser.PageSource, gmailProvider GmailProvider, cls Classifier, opts ...Option) *Service {
	svc := &Service{
		source:     source,
		gmail:      gmailProvider,
		classifier: cls,
		settings:   DefaultSettings(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.resolver == nil {
		svc.resolver = gmail.NewResolver()
	}
	svc.logger = logging.WithComponent(svc.logger, "labeler")
	svc.locator = locator.New(svc.settings.MaxRows, svc.logger)
	svc.bg, svc.bgCancel = context.WithCancel(context.Background())
	return svc
}

// Settings returns the active settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// Close cancels pending refreshes and waits for them to return.
func (s *Service) Close() {
	s.bgCancel()
	s.pending.Wait()
}

// Wait blocks until every scheduled refresh has run.
func (s *Service) Wait() {
	s.pending.Wait()
}

type sourceKey struct{}

// WithSource tags ctx with who triggered an operation (relay, cli, observer,
// batch) for metrics and history.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return instrumentation.SourceCLI
}

func (s *Service) gmailClient(ctx context.Context) (GmailAPI, error) {
	api, err := s.gmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return api, nil
}

func (s *Service) snapshot(ctx context.Context) (*locator.Page, error) {
	p, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return p, nil
}

// scheduleRefresh clicks Gmail's refresh button after the configured delay.
// Failures are only logged.
func (s *Service) scheduleRefresh() {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.sleep(s.bg, s.settings.RefreshDelay); err != nil {
			return
		}
		if err := s.source.Refresh(s.bg); err != nil {
			s.logger.Debug("ui refresh failed", logging.Err(err))
		}
	}()
}

// record writes an apply attempt to metrics and history.
func (s *Service) record(ctx context.Context, threadID, label string, confidence *float64, outcome string, err error) {
	source := sourceFrom(ctx)
	if outcome == instrumentation.OutcomeLabeled {
		s.metrics.RecordLabelApplied(ctx, source)
	}
	if s.history == nil {
		return
	}

	entry := history.Entry{
		ThreadID:   threadID,
		Label:      label,
		Source:     source,
		Confidence: confidence,
		Outcome:    outcome,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if herr := s.history.Record(context.WithoutCancel(ctx), entry); herr != nil {
		s.logger.Warn("failed to record history", logging.Err(herr))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
