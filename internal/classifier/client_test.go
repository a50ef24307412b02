package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu       sync.Mutex
	requests []map[string]string
	paths    []string
	handler  func(w http.ResponseWriter, path string, body map[string]string)
}

func newFakeService(t *testing.T, handler func(w http.ResponseWriter, path string, body map[string]string)) (*fakeService, *Client) {
	t.Helper()
	f := &fakeService{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, body)
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		f.handler(w, r.URL.Path, body)
	}))
	t.Cleanup(srv.Close)
	return f, New(srv.URL + "/")
}

func reply(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Predict(t *testing.T) {
	f, c := newFakeService(t, func(w http.ResponseWriter, _ string, body map[string]string) {
		reply(w, http.StatusOK, map[string]any{"label": "Work", "confidence": 0.95})
	})

	p, err := c.Predict(context.Background(), "Quarterly planning\nAgenda attached")
	require.NoError(t, err)
	assert.Equal(t, Prediction{Label: "Work", Confidence: 0.95}, p)
	assert.Equal(t, []string{"/predict"}, f.paths)
	assert.Equal(t, "Quarterly planning\nAgenda attached", f.requests[0]["text"])
}

func TestClient_Train(t *testing.T) {
	f, c := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]string) {
		reply(w, http.StatusOK, map[string]string{"status": "success"})
	})

	require.NoError(t, c.Train(context.Background(), "Flight confirmation", "Travel"))
	assert.Equal(t, "/train", f.paths[0])
	assert.Equal(t, map[string]string{"text": "Flight confirmation", "label": "Travel"}, f.requests[0])
}

func TestClient_Reset(t *testing.T) {
	_, c := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]string) {
		reply(w, http.StatusOK, map[string]string{"message": "Model reset successfully"})
	})

	msg, err := c.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Model reset successfully", msg)
}

func TestClient_Status(t *testing.T) {
	f, c := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]string) {
		reply(w, http.StatusOK, map[string]string{"status": "Server is running"})
	})

	require.NoError(t, c.Status(context.Background()))
	assert.Equal(t, "/predict", f.paths[0])
	assert.Equal(t, StatusCheckText, f.requests[0]["text"])
}

func TestClient_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "error field on 400",
			status:     http.StatusBadRequest,
			body:       map[string]string{"error": "Model not trained yet"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Model not trained yet",
		},
		{
			name:       "no error field on 500",
			status:     http.StatusInternalServerError,
			body:       "oops",
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal Server Error",
		},
		{
			name:       "error field on 200",
			status:     http.StatusOK,
			body:       map[string]string{"error": "The model needs at least 2 different labels"},
			wantStatus: http.StatusOK,
			wantMsg:    "The model needs at least 2 different labels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]string) {
				reply(w, tt.status, tt.body)
			})

			_, err := c.Predict(context.Background(), "hello")
			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, svcErr.StatusCode)
			assert.Equal(t, tt.wantMsg, svcErr.Message)
			assert.Equal(t, "predict", svcErr.Endpoint)
			assert.NotErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Status(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).Predict(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestPrediction_Meets(t *testing.T) {
	tests := []struct {
		name      string
		p         Prediction
		threshold float64
		want      bool
	}{
		{"above", Prediction{Label: "Work", Confidence: 0.95}, 0.7, true},
		{"equal", Prediction{Label: "Work", Confidence: 0.7}, 0.7, true},
		{"below", Prediction{Label: "Work", Confidence: 0.65}, 0.7, false},
		{"no label", Prediction{Confidence: 0.99}, 0.7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Meets(tt.threshold))
		})
	}
}
