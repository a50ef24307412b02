package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "ping",
			method:     http.MethodPost,
			body:       `{"action":"ping"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"pong":true}`,
		},
		{
			name:       "no open email encodes null",
			method:     http.MethodPost,
			body:       `{"action":"getEmailContent"}`,
			wantStatus: http.StatusOK,
			wantBody:   `null`,
		},
		{
			name:       "unknown action",
			method:     http.MethodPost,
			body:       `{"action":"nope"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"error":"unknown action: nope","success":false}`,
		},
		{
			name:       "malformed json",
			method:     http.MethodPost,
			body:       `{"action":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong method",
			method:     http.MethodDelete,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gmailBase+"#inbox", listHTML(1))
			h := NewHandler(f.d, nil)

			req := httptest.NewRequest(tt.method, "/relay", strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_BearerToken(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(1), "Travel")
	h := NewHandler(f.d, nil)

	req := httptest.NewRequest(http.MethodPost, "/relay",
		strings.NewReader(`{"action":"applyLabelToEmail","threadId":"t-1","label":"Travel"}`))
	req.Header.Set("Authorization", "Bearer ya29.header")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []string{"ya29.header"}, f.tokens)
}

func TestHub(t *testing.T) {
	hub := NewHub()
	events, release := hub.Subscribe(1)
	assert.Equal(t, 1, hub.Subscribers())

	hub.Publish(context.Background(), Response{"action": "a"})
	// Buffer full: dropped, not blocked.
	hub.Publish(context.Background(), Response{"action": "b"})

	assert.Equal(t, Response{"action": "a"}, <-events)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	default:
	}

	release()
	release()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHandler_EventStream(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(2, 0, 1))
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(f.d, hub))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	stream, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	post, err := srv.Client().Post(srv.URL, "application/json",
		strings.NewReader(`{"action":"batchTrain","label":"Newsletters"}`))
	require.NoError(t, err)
	post.Body.Close()

	scanner := bufio.NewScanner(stream.Body)
	var names []string
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
			if name == EventBatchTrainingComplete {
				break
			}
		}
	}
	assert.Equal(t, []string{EventBatchTrainingUpdate, EventBatchTrainingUpdate, EventBatchTrainingComplete}, names)
}
