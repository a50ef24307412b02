package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxlabeler/internal/browser/browsertest"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/history"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/observer"
)

type nopClassifier struct{}

func (nopClassifier) Predict(context.Context, string) (classifier.Prediction, error) {
	return classifier.Prediction{}, nil
}

func (nopClassifier) Train(context.Context, string, string) error { return nil }

func newTestLabeler(t *testing.T) (*labeler.Service, *browsertest.Source) {
	t.Helper()
	page, err := browsertest.New("https://mail.google.com/mail/u/0/#inbox",
		`<html><body><div role="main"><div role="list">`+
			`<div role="listitem" data-thread-id="thread00000001"><span class="y6">Hello</span></div>`+
			`</div></div></body></html>`)
	require.NoError(t, err)
	svc := labeler.New(page, func(context.Context) (labeler.GmailAPI, error) {
		return nil, labeler.ErrAuthentication
	}, nopClassifier{})
	return svc, page
}

func TestNewServerContext_RequiresLabeler(t *testing.T) {
	_, err := NewServerContext(context.Background(), nil)
	assert.Error(t, err)
}

func TestServerContext_Relay(t *testing.T) {
	svc, _ := newTestLabeler(t)
	sc, err := NewServerContext(context.Background(), svc)
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	rec := httptest.NewRecorder()
	sc.RelayHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(`{"action":"ping"}`)))
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
}

func TestServerContext_Shutdown(t *testing.T) {
	svc, page := newTestLabeler(t)

	store, err := history.Open(t.TempDir() + "/history.db")
	require.NoError(t, err)

	obs, err := observer.New(svc, nil, observer.WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	closed := []string{}
	sc, err := NewServerContext(context.Background(), svc,
		WithHistory(store),
		WithObserver(obs),
		WithCloser(func() { closed = append(closed, "first") }),
		WithCloser(func() { closed = append(closed, "second") }),
	)
	require.NoError(t, err)
	assert.Same(t, store, sc.History())

	assert.False(t, sc.ObserverRunning())
	sc.StartObserver()
	sc.StartObserver()
	assert.True(t, sc.ObserverRunning())
	require.Eventually(t, func() bool { return page.Snapshots() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.False(t, sc.ObserverRunning())
	assert.Error(t, sc.Context().Err())
	assert.Equal(t, []string{"second", "first"}, closed)
	assert.Equal(t, 1, obs.Seen())

	// Idempotent.
	require.NoError(t, sc.Shutdown())
	assert.Len(t, closed, 2)
}
