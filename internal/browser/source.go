package browser

import (
	"context"
	"errors"

	"github.com/teemow/inboxlabeler/internal/locator"
)

// ErrNoRefreshButton is returned when the page has no refresh button to click.
var ErrNoRefreshButton = errors.New("refresh button not found")

// PageSource yields the current state of the Gmail tab.
type PageSource interface {
	// Snapshot captures the tab's location and DOM.
	Snapshot(ctx context.Context) (*locator.Page, error)
	// Refresh asks Gmail to re-render the current view.
	Refresh(ctx context.Context) error
}
