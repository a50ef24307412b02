package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/inboxlabeler/internal/browser"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/config"
	"github.com/teemow/inboxlabeler/internal/gmail"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/history"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// errNoPageSource is returned by commands that read the page when neither
// browser.cdp_url nor browser.snapshot is configured.
var errNoPageSource = errors.New("no page source configured: set browser.cdp_url (or INBOXLABELER_CDP_URL) or browser.snapshot")

// app bundles the services a command needs.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	classifier *classifier.Client
	history    *history.Store
	labeler    *labeler.Service

	gmailClient gmailClientFunc
	closeSource func()
}

// newApp wires the labeling service from cfg. metrics may be nil.
func newApp(ctx context.Context, cfg *config.Config, metrics *instrumentation.Metrics) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger, closeSource: func() {}}

	a.classifier = newClassifierClient(cfg, metrics, logger)

	source, closeSource, err := newPageSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closeSource = closeSource

	if cfg.History.Path != "" {
		a.history, err = history.Open(cfg.History.Path)
		if err != nil {
			a.closeSource()
			return nil, err
		}
	}

	a.gmailClient = newGmailClientFunc(cfg, metrics, logger)
	a.labeler = labeler.New(source, newGmailProvider(a.gmailClient), a.classifier,
		labeler.WithSettings(labeler.SettingsFromConfig(cfg)),
		labeler.WithHistory(a.history),
		labeler.WithMetrics(metrics),
		labeler.WithLogger(logger),
	)
	return a, nil
}

// Close waits for pending refreshes and releases resources.
func (a *app) Close() {
	a.labeler.Close()
	if err := a.history.Close(); err != nil {
		a.logger.Warn("failed to close history", logging.Err(err))
	}
	a.closeSource()
}

func newClassifierClient(cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) *classifier.Client {
	return classifier.New(cfg.Classifier.URL,
		classifier.WithTimeout(cfg.Classifier.Timeout),
		classifier.WithMetrics(metrics),
		classifier.WithLogger(logger),
	)
}

// newPageSource returns the configured page source. Without one, a source
// that fails every call is returned, so relay actions that do not read the
// page keep working.
func newPageSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (browser.PageSource, func(), error) {
	switch {
	case cfg.Browser.CDPURL != "":
		src, err := browser.NewChromeSource(ctx, cfg.Browser.CDPURL, logging.NewSlogAdapter(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to attach to Chrome: %w", err)
		}
		return src, src.Close, nil
	case cfg.Browser.Snapshot != "":
		return browser.NewFileSource(cfg.Browser.Snapshot, cfg.Browser.PageURL, logging.NewSlogAdapter(logger)), func() {}, nil
	default:
		return noPageSource{}, func() {}, nil
	}
}

type noPageSource struct{}

func (noPageSource) Snapshot(context.Context) (*locator.Page, error) { return nil, errNoPageSource }
func (noPageSource) Refresh(context.Context) error                 { return errNoPageSource }

// pageSourceKind names the configured page source for telemetry.
func pageSourceKind(cfg *config.Config) string {
	switch {
	case cfg.Browser.CDPURL != "":
		return instrumentation.PageSourceChrome
	case cfg.Browser.Snapshot != "":
		return instrumentation.PageSourceSnapshot
	default:
		return instrumentation.PageSourceNone
	}
}

// hasPageSource reports whether cfg names a page source.
func hasPageSource(cfg *config.Config) bool {
	return cfg.Browser.CDPURL != "" || cfg.Browser.Snapshot != ""
}

// gmailClientFunc builds a Gmail client for the token carried by ctx, or
// for the stored token when ctx carries none.
type gmailClientFunc func(ctx context.Context) (*gmail.Client, error)

func newGmailClientFunc(cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) gmailClientFunc {
	conf, err := google.LoadOAuthConfig(cfg.Gmail.CredentialsFile)
	if err != nil {
		logger.Debug("no OAuth client configured, only request tokens will work", logging.Err(err))
	}
	tokens := google.RequestTokenProvider{Fallback: google.NewFileTokenProvider(conf, cfg.Gmail.TokenFile)}

	return func(ctx context.Context) (*gmail.Client, error) {
		ts, err := tokens.TokenSource(ctx)
		if err != nil {
			return nil, err
		}
		hc := google.HTTPClient(context.WithoutCancel(ctx), ts, otelhttp.NewTransport(http.DefaultTransport))
		return gmail.NewClient(ctx, hc, cfg.Gmail.Endpoint,
			gmail.WithMetrics(metrics),
			gmail.WithLogger(logger),
		)
	}
}

// newGmailProvider returns a GmailProvider that prefers a bearer token carried
// by the request and otherwise uses the stored token file. The token-file
// client is built once and reused.
func newGmailProvider(build gmailClientFunc) labeler.GmailProvider {
	var (
		mu     sync.Mutex
		cached *gmail.Client
	)
	return func(ctx context.Context) (labeler.GmailAPI, error) {
		if _, ok := google.RequestToken(ctx); ok {
			return build(ctx)
		}
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		c, err := build(ctx)
		if err != nil {
			return nil, err
		}
		cached = c
		return c, nil
	}
}
