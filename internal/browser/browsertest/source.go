// Package browsertest provides an in-memory browser.PageSource for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/teemow/inboxlabeler/internal/locator"
)

// Source serves whatever page was last set.
type Source struct {
	mu         sync.Mutex
	page       *locator.Page
	snapErr    error
	refreshErr error
	snapshots  int
	refreshes  int
}

// New returns a source serving the given HTML at url.
func New(url, html string) (*Source, error) {
	s := &Source{}
	return s, s.Set(url, html)
}

// Set replaces the served page.
func (s *Source) Set(url, html string) error {
	p, err := locator.ParsePageString(url, html)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.page = p
	s.mu.Unlock()
	return nil
}

// FailSnapshots makes every Snapshot return err. nil clears it.
func (s *Source) FailSnapshots(err error) {
	s.mu.Lock()
	s.snapErr = err
	s.mu.Unlock()
}

// FailRefresh makes every Refresh return err. nil clears it.
func (s *Source) FailRefresh(err error) {
	s.mu.Lock()
	s.refreshErr = err
	s.mu.Unlock()
}

func (s *Source) Snapshot(ctx context.Context) (*locator.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	if s.page == nil {
		return nil, errors.New("no page set")
	}
	return s.page, nil
}

func (s *Source) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.refreshErr
}

// Refreshes returns how often Refresh was called.
func (s *Source) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Snapshots returns how often Snapshot was called.
func (s *Source) Snapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}
