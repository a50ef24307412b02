package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// FileSource reads the page from a saved HTML file on every snapshot, so
// the file can be replaced while a watcher runs.
type FileSource struct {
	path    string
	pageURL string
	logger  logging.Logger
}

// NewFileSource returns a source for the snapshot at path. pageURL stands in
// for the tab location, which a saved file does not record.
func NewFileSource(path, pageURL string, logger logging.Logger) *FileSource {
	if logger == nil {
		logger = logging.NewSlogAdapter(nil)
	}
	return &FileSource{path: path, pageURL: pageURL, logger: logger}
}

// Snapshot parses the file as it is now, so edits show up on the next call.
func (s *FileSource) Snapshot(ctx context.Context) (*locator.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return locator.ParsePage(s.pageURL, f)
}

// Refresh cannot click anything in a file. It re-reads the snapshot and
// reports whether a live page would have had a refresh button.
func (s *FileSource) Refresh(ctx context.Context) error {
	p, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if _, ok := locator.RefreshButton(p); !ok {
		return ErrNoRefreshButton
	}
	s.logger.Debug("snapshot refresh is a no-op", "path", s.path)
	return nil
}
