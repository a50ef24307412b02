package gmail

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrEmptyLabelName is returned when asked to resolve a blank label name.
var ErrEmptyLabelName = errors.New("label name must not be empty")

// LabelService is the subset of Client the resolver needs.
type LabelService interface {
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (Label, error)
}

// Resolver maps label names to ids, creating labels that do not exist.
//
// Resolutions of the same name are serialized within the process, so two
// concurrent callers cannot both observe "missing" and create duplicates.
// Other processes sharing the account can still race.
type Resolver struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{locks: make(map[string]*nameLock)}
}

// Resolve returns the id of the label called name, creating it when no label
// with exactly that name exists.
func (r *Resolver) Resolve(ctx context.Context, svc LabelService, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyLabelName
	}

	unlock := r.lock(name)
	defer unlock()

	labels, err := svc.ListLabels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if l.Name == name {
			return l.ID, nil
		}
	}

	created, err := svc.CreateLabel(ctx, name)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (r *Resolver) lock(name string) func() {
	r.mu.Lock()
	l, ok := r.locks[name]
	if !ok {
		l = &nameLock{}
		r.locks[name] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, name)
		}
		r.mu.Unlock()
	}
}
