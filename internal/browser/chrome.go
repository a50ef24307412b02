package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// GmailURLPrefix identifies the tab to attach to.
const GmailURLPrefix = "https://mail.google.com/"

// ErrNoGmailTab is returned when no open tab shows Gmail.
var ErrNoGmailTab = errors.New("no Gmail tab found")

// ChromeSource reads the Gmail tab of a running Chrome.
type ChromeSource struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	// tabCancel is never called; cancelling would close the Gmail tab.
	tabCancel context.CancelFunc

	logger logging.Logger
	// chromedp runs one action list per tab at a time.
	mu sync.Mutex
}

// NewChromeSource connects to the DevTools endpoint at cdpURL, e.g.
// ws://127.0.0.1:9222/devtools/browser/<id>, and attaches to the first Gmail tab.
func NewChromeSource(ctx context.Context, cdpURL string, logger *logging.SlogAdapter) (*ChromeSource, error) {
	if logger == nil {
		logger = logging.NewSlogAdapter(nil)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debugf),
		chromedp.WithErrorf(logger.Errorf))

	s := &ChromeSource{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}

	if err := s.run(ctx, browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to Chrome at %s: %w", cdpURL, err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	tab, ok := gmailTab(targets)
	if !ok {
		s.Close()
		return nil, ErrNoGmailTab
	}

	s.tabCtx, s.tabCancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(tab.TargetID))
	logger.Info("attached to Gmail tab", "url", tab.URL)
	return s, nil
}

// gmailTab picks the first page target showing Gmail.
func gmailTab(targets []*target.Info) (*target.Info, bool) {
	for _, t := range targets {
		if t.Type == "page" && strings.HasPrefix(t.URL, GmailURLPrefix) {
			return t, true
		}
	}
	return nil, false
}

// Snapshot captures the Gmail tab's location and rendered HTML.
func (s *ChromeSource) Snapshot(ctx context.Context) (*locator.Page, error) {
	var location, html string
	err := s.run(ctx, s.tabCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture Gmail tab: %w", err)
	}
	return locator.ParsePageString(location, html)
}

// Refresh clicks the refresh button from inside the page. A script click
// returns immediately, unlike chromedp.Click, which waits for the node.
func (s *ChromeSource) Refresh(ctx context.Context) error {
	var clicked bool
	if err := s.run(ctx, s.tabCtx, chromedp.Evaluate(locator.RefreshScript, &clicked)); err != nil {
		return fmt.Errorf("failed to click refresh: %w", err)
	}
	if !clicked {
		return ErrNoRefreshButton
	}
	return nil
}

// Close disconnects from Chrome. The browser and its tabs keep running.
func (s *ChromeSource) Close() {
	s.browserCancel()
	s.allocCancel()
}

// run executes actions on a chromedp context while honouring the caller's ctx.
func (s *ChromeSource) run(ctx, chromeCtx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(chromeCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
