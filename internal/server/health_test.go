package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/history"
)

func TestLivenessHandler(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("classifier", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		check      CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "ready without checks",
			ready:      true,
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok"},
		},
		{
			name:       "classifier reachable",
			ready:      true,
			check:      func(context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "classifier": "ok"},
		},
		{
			name:       "classifier unreachable",
			ready:      true,
			check:      func(context.Context) error { return errors.New("classification service unavailable") },
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "classifier": "classification service unavailable"},
		},
		{
			name:       "not ready",
			ready:      false,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(nil)
			h.SetReady(tt.ready)
			if tt.check != nil {
				h.AddCheck("classifier", tt.check)
			}

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestReadinessHandler_CheckHonoursTimeout(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("slow", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterHealthEndpoints(t *testing.T) {
	h := NewHealthChecker(nil)
	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewHealthChecker_LabelerDependencies(t *testing.T) {
	var classifierDown atomic.Bool
	cls := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if classifierDown.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"label":"Work","confidence":0.9}`))
	}))
	defer cls.Close()

	ctx := context.Background()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, history.Entry{ThreadID: "thread00000001", Label: "Work", Source: "relay", Outcome: "labeled"}))
	require.NoError(t, store.Record(ctx, history.Entry{ThreadID: "thread00000002", Label: "Work", Source: "batch", Outcome: "labeled"}))

	svc, _ := newTestLabeler(t)
	sc, err := NewServerContext(ctx, svc, WithHistory(store), WithClassifier(classifier.New(cls.URL)))
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	h := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detailed DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.Equal(t, "ok", detailed.Checks["classifier"])
	assert.Equal(t, "ok", detailed.Checks["history"])
	require.NotNil(t, detailed.Labeler)
	assert.False(t, detailed.Labeler.ObserverRunning)
	assert.Equal(t, map[string]int{"labeled": 2}, detailed.Labeler.Outcomes)

	classifierDown.Store(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, "ok", resp.Checks["classifier"])
	assert.Equal(t, "ok", resp.Checks["history"])
}

func TestHealthChecker_ShuttingDown(t *testing.T) {
	svc, _ := newTestLabeler(t)
	sc, err := NewServerContext(context.Background(), svc)
	require.NoError(t, err)
	h := NewHealthChecker(sc)
	require.NoError(t, sc.Shutdown())

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting down")
}
