package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxlabeler/internal/browser/browsertest"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/gmail"
	"github.com/teemow/inboxlabeler/internal/gmail/gmailtest"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/locator"
)

const gmailBase = "https://mail.google.com/mail/u/0/"

const openEmailHTML = `<html><body>
<button aria-label="Refresh"></button>
<h2 class="hP">Invoice 42</h2>
<div class="a3s aiL">Payment due Friday.</div>
</body></html>`

type stubClassifier struct {
	mu       sync.Mutex
	pred     classifier.Prediction
	trainErr error
	trained  int
	reset    int
	down     bool
}

func (s *stubClassifier) Predict(context.Context, string) (classifier.Prediction, error) {
	return s.pred, nil
}

func (s *stubClassifier) Train(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trainErr != nil {
		return s.trainErr
	}
	s.trained++
	return nil
}

func (s *stubClassifier) Status(context.Context) error {
	if s.down {
		return classifier.ErrUnavailable
	}
	return nil
}

func (s *stubClassifier) Reset(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset++
	return "Model reset successfully", nil
}

type fixture struct {
	d     *Dispatcher
	svc   *labeler.Service
	gmail *gmailtest.Server
	page  *browsertest.Source
	cls   *stubClassifier
	// tokens records the request token seen by each Gmail client lookup.
	tokens []string
}

func newFixture(t *testing.T, url, html string, labels ...string) *fixture {
	t.Helper()

	srv := gmailtest.NewServer(labels...)
	t.Cleanup(srv.Close)
	client, err := gmail.NewClient(context.Background(), srv.Client(), srv.Endpoint())
	require.NoError(t, err)

	page, err := browsertest.New(url, html)
	require.NoError(t, err)

	f := &fixture{gmail: srv, page: page, cls: &stubClassifier{}}
	var mu sync.Mutex
	provider := func(ctx context.Context) (labeler.GmailAPI, error) {
		mu.Lock()
		defer mu.Unlock()
		token, _ := google.RequestToken(ctx)
		f.tokens = append(f.tokens, token)
		return client, nil
	}
	f.svc = labeler.New(page, provider, f.cls,
		labeler.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	t.Cleanup(f.svc.Close)

	f.d = NewDispatcher(f.svc)
	t.Cleanup(f.d.Close)
	return f
}

func listHTML(n int, selected ...int) string {
	sel := map[int]bool{}
	for _, i := range selected {
		sel[i] = true
	}
	var b strings.Builder
	b.WriteString(`<html><body><button aria-label="Refresh"></button><div role="main"><div role="list">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div role="listitem" data-thread-id="thread%08d"><div role="checkbox" aria-checked="%t"></div><span class="y6">Subject %d</span><span class="y2">Snippet %d</span></div>`,
			i, sel[i], i, i)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

type events struct {
	mu   sync.Mutex
	list []Response
}

func (e *events) notify(_ context.Context, ev Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
}

func (e *events) all() []Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Response(nil), e.list...)
}

func TestHandle_Ping(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(0))

	assert.Equal(t, Response{"pong": true}, f.d.Handle(context.Background(), Request{Action: ActionPing}, nil))
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(0))

	resp := f.d.Handle(context.Background(), Request{Action: "deleteEverything"}, nil)
	assert.Equal(t, Response{"success": false, "error": "unknown action: deleteEverything"}, resp)
	assert.True(t, resp.Failed())
}

func TestHandle_GetEmailContent(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox/18c2f0a1b2c3d4e5", openEmailHTML)

	resp := f.d.Handle(context.Background(), Request{Action: ActionGetEmailContent}, nil)
	assert.Equal(t, Response{"threadId": "18c2f0a1b2c3d4e5", "subject": "Invoice 42", "body": "Payment due Friday."}, resp)

	require.NoError(t, f.page.Set(gmailBase+"#inbox", "<html><body></body></html>"))
	resp = f.d.Handle(context.Background(), Request{Action: ActionGetEmailContent}, nil)
	assert.Nil(t, resp)
	assert.False(t, resp.Failed())
}

func TestHandle_ApplyLabel(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		label     string
		wantError string
	}{
		{
			name:  "open email",
			url:   gmailBase + "#inbox/18c2f0a1b2c3d4e5",
			label: "Finance",
		},
		{
			name:      "no open email",
			url:       gmailBase + "#inbox",
			label:     "Finance",
			wantError: "could not get thread ID from email",
		},
		{
			name:      "missing label",
			url:       gmailBase + "#inbox/18c2f0a1b2c3d4e5",
			wantError: "label is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.url, openEmailHTML)

			resp := f.d.Handle(context.Background(), Request{Action: ActionApplyLabel, Label: tt.label}, nil)
			if tt.wantError != "" {
				assert.Equal(t, Response{"success": false, "error": tt.wantError}, resp)
				assert.Empty(t, f.gmail.Modifications())
				return
			}
			assert.Equal(t, true, resp["success"])
			assert.Equal(t, "18c2f0a1b2c3d4e5", resp["threadId"])
			assert.Equal(t, f.gmail.LabelID("Finance"), resp["labelId"])
		})
	}
}

func TestHandle_ApplyLabelToEmail(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(0), "Travel")

	resp := f.d.Handle(context.Background(), Request{Action: ActionApplyLabelToEmail, ThreadID: "t-1", MessageID: "m-1", Label: "Travel"}, nil)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "m-1", resp["messageId"])

	mods := f.gmail.Modifications()
	require.Len(t, mods, 1)
	assert.Equal(t, "message", mods[0].Kind)
	assert.Equal(t, "m-1", mods[0].ID)
}

func TestHandle_ApplyLabelToEmail_GmailError(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(0), "Travel")
	f.gmail.Fail(gmailtest.EndpointModifyThread, 403, "Insufficient Permission")

	resp := f.d.Handle(context.Background(), Request{Action: ActionApplyLabelToEmail, ThreadID: "t-1", Label: "Travel"}, nil)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "failed to apply label: Insufficient Permission", resp["error"])
}

func TestHandle_GetAllVisibleEmails(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(4, 1, 3))

	resp := f.d.Handle(context.Background(), Request{Action: ActionGetAllVisibleEmails}, nil)
	all, ok := resp["emails"].([]locator.VisibleEmail)
	require.True(t, ok)
	assert.Len(t, all, 4)

	resp = f.d.Handle(context.Background(), Request{Action: ActionGetAllVisibleEmails, SelectedOnly: true}, nil)
	selected := resp["emails"].([]locator.VisibleEmail)
	require.Len(t, selected, 2)
	assert.Equal(t, "thread00000001", selected[0].ThreadID)
	assert.Equal(t, "Subject 3\nSnippet 3", selected[1].Content)
}

func TestHandle_RequestTokenReachesGmail(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(0), "Travel")

	f.d.Handle(context.Background(), Request{Action: ActionApplyLabelToEmail, ThreadID: "t-1", Label: "Travel", Token: "ya29.request"}, nil)
	f.d.Handle(context.Background(), Request{Action: ActionApplyLabelToEmail, ThreadID: "t-2", Label: "Travel"}, nil)

	assert.Equal(t, []string{"ya29.request", ""}, f.tokens)
}

func TestHandle_BatchTrain(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(6, 0, 2, 4))
	ev := &events{}

	resp := f.d.Handle(context.Background(), Request{Action: ActionBatchTrain, Label: "Newsletters"}, ev.notify)
	assert.Equal(t, Response{"status": "started", "totalEmails": 3}, resp)

	f.d.Wait()
	got := ev.all()
	require.Len(t, got, 4)
	for i, e := range got[:3] {
		assert.Equal(t, EventBatchTrainingUpdate, e["action"])
		assert.Equal(t, i+1, e["processed"])
	}
	assert.Equal(t, Response{
		"action":            EventBatchTrainingComplete,
		"processed":         3,
		"successCount":      3,
		"labelAppliedCount": 3,
	}, got[3])
	assert.Equal(t, 3, f.cls.trained)
	assert.Len(t, f.gmail.Modifications(), 3)
}

func TestHandle_BatchTrain_TrainingFails(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(3, 0, 1))
	f.cls.trainErr = errors.New("model locked")
	ev := &events{}

	resp := f.d.Handle(context.Background(), Request{Action: ActionBatchTrain, Label: "Newsletters"}, ev.notify)
	assert.Equal(t, "started", resp["status"])

	f.d.Wait()
	got := ev.all()
	require.NotEmpty(t, got)
	done := got[len(got)-1]
	assert.Equal(t, EventBatchTrainingComplete, done["action"])
	assert.Equal(t, 2, done["processed"])
	assert.Equal(t, 0, done["successCount"])
	assert.Equal(t, 0, done["labelAppliedCount"])
	assert.Empty(t, f.gmail.Modifications())
}

func TestHandle_BatchTrain_NothingSelected(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(3))
	ev := &events{}

	resp := f.d.Handle(context.Background(), Request{Action: ActionBatchTrain, Label: "Newsletters"}, ev.notify)
	assert.Equal(t, Response{"status": "error", "error": "no emails selected for batch training"}, resp)
	assert.True(t, resp.Failed())

	f.d.Wait()
	assert.Empty(t, ev.all())
}

func TestHandle_BatchTrain_OutlivesRequest(t *testing.T) {
	f := newFixture(t, gmailBase+"#inbox", listHTML(2, 0, 1))
	ev := &events{}

	ctx, cancel := context.WithCancel(context.Background())
	resp := f.d.Handle(ctx, Request{Action: ActionBatchTrain, Label: "Newsletters"}, ev.notify)
	cancel()
	assert.Equal(t, "started", resp["status"])

	f.d.Wait()
	got := ev.all()
	require.NotEmpty(t, got)
	assert.Equal(t, 2, got[len(got)-1]["labelAppliedCount"])
}
