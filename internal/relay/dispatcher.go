package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Relay actions.
const (
	ActionGetEmailContent     = "getEmailContent"
	ActionApplyLabel          = "applyLabel"
	ActionGetAllVisibleEmails = "getAllVisibleEmails"
	ActionApplyLabelToEmail   = "applyLabelToEmail"
	ActionBatchTrain          = "batchTrain"
	ActionPing                = "ping"
)

// Notification actions sent while a batch training job runs.
const (
	EventBatchTrainingUpdate   = "batchTrainingUpdate"
	EventBatchTrainingComplete = "batchTrainingComplete"
)

var (
	// ErrUnknownAction is returned for actions outside the fixed set.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingLabel is returned when an action needs a label and got none.
	ErrMissingLabel = errors.New("label is required")
)

// Request is one relay message.
type Request struct {
	Action       string `json:"action"`
	Label        string `json:"label,omitempty"`
	ThreadID     string `json:"threadId,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	BatchSize    int    `json:"batchSize,omitempty"`
	SelectedOnly bool   `json:"selectedOnly,omitempty"`
	// Token is an OAuth access token for Gmail. Without it the server's
	// stored token is used.
	Token string `json:"token,omitempty"`
}

// Response is the reply object. A nil Response encodes as JSON null.
type Response map[string]any

// Failed reports whether r is an error reply.
func (r Response) Failed() bool {
	if r == nil {
		return false
	}
	if ok, present := r["success"].(bool); present && !ok {
		return true
	}
	return r["status"] == "error"
}

func errorResponse(err error) Response {
	return Response{"success": false, "error": err.Error()}
}

// Notifier receives batch training events. It may be called after Handle has
// returned.
type Notifier func(ctx context.Context, event Response)

// Labeler is the labeling service the relay drives.
type Labeler interface {
	EmailContent(ctx context.Context) (*locator.EmailRef, error)
	ApplyLabel(ctx context.Context, label string) (*labeler.ApplyResult, error)
	VisibleEmails(ctx context.Context, selectedOnly bool) ([]locator.VisibleEmail, error)
	ApplyLabelToEmail(ctx context.Context, target labeler.Target, label string) (*labeler.ApplyResult, error)
	SelectedEmails(ctx context.Context) ([]locator.VisibleEmail, error)
	BatchTrain(ctx context.Context, emails []locator.VisibleEmail, label string, batchSize int, progress batch.ProgressFunc) (*labeler.TrainReport, error)
	PredictAndApply(ctx context.Context) (*labeler.PredictionOutcome, error)
	TrainAndApply(ctx context.Context, label string) (*labeler.ApplyResult, error)
	ClassifyVisible(ctx context.Context, progress batch.ProgressFunc) (*batch.Report, error)
	TestPrediction(ctx context.Context, text string) (classifier.Prediction, error)
}

// Dispatcher routes requests to the labeler.
type Dispatcher struct {
	svc     Labeler
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger
	source  string

	bg     context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records every action on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAuditLogger writes an audit record per action.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher for svc.
func NewDispatcher(svc Labeler, opts ...Option) *Dispatcher {
	d := &Dispatcher{svc: svc, source: instrumentation.SourceRelay}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.WithComponent(d.logger, "relay")
	d.bg, d.cancel = context.WithCancel(context.Background())
	return d
}

// Wait blocks until all background jobs have finished.
func (d *Dispatcher) Wait() {
	d.jobs.Wait()
}

// Close cancels background jobs and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.jobs.Wait()
}

// Handle executes req. Errors are returned in the Response, never as Go
// errors. notify may be nil.
func (d *Dispatcher) Handle(ctx context.Context, req Request, notify Notifier) Response {
	ctx = google.WithRequestToken(ctx, req.Token)
	ctx = labeler.WithSource(ctx, d.source)

	ctx, span := instrumentation.StartActionSpan(ctx, req.Action,
		instrumentation.NewSpanAttributeBuilder().WithThread(req.ThreadID).WithLabel(req.Label).Build()...)
	invocation := instrumentation.NewActionInvocation(req.Action, d.source).
		WithTarget(req.ThreadID, req.Label).
		WithSpanContext(ctx)
	start := time.Now()

	resp, err := d.route(ctx, req, notify)
	if err != nil && resp == nil {
		resp = errorResponse(err)
	}

	instrumentation.EndSpan(span, err)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	d.metrics.RecordRelayAction(ctx, req.Action, status, time.Since(start))
	d.audit.LogAction(invocation.Complete(err))
	return resp
}

func (d *Dispatcher) route(ctx context.Context, req Request, notify Notifier) (Response, error) {
	switch req.Action {
	case ActionGetEmailContent:
		return d.getEmailContent(ctx)
	case ActionApplyLabel:
		return d.applyLabel(ctx, req)
	case ActionGetAllVisibleEmails:
		return d.getAllVisibleEmails(ctx, req)
	case ActionApplyLabelToEmail:
		return d.applyLabelToEmail(ctx, req)
	case ActionBatchTrain:
		return d.batchTrain(ctx, req, notify)
	case ActionPing:
		return Response{"pong": true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
}

func (d *Dispatcher) getEmailContent(ctx context.Context) (Response, error) {
	ref, err := d.svc.EmailContent(ctx)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}
	return Response{"threadId": ref.ThreadID, "subject": ref.Subject, "body": ref.Body}, nil
}

func (d *Dispatcher) applyLabel(ctx context.Context, req Request) (Response, error) {
	if req.Label == "" {
		return nil, ErrMissingLabel
	}
	res, err := d.svc.ApplyLabel(ctx, req.Label)
	if err != nil {
		return nil, err
	}
	return applied(res), nil
}

func (d *Dispatcher) getAllVisibleEmails(ctx context.Context, req Request) (Response, error) {
	emails, err := d.svc.VisibleEmails(ctx, req.SelectedOnly)
	if err != nil {
		return nil, err
	}
	return Response{"emails": emails}, nil
}

func (d *Dispatcher) applyLabelToEmail(ctx context.Context, req Request) (Response, error) {
	if req.Label == "" {
		return nil, ErrMissingLabel
	}
	res, err := d.svc.ApplyLabelToEmail(ctx, labeler.Target{ThreadID: req.ThreadID, MessageID: req.MessageID}, req.Label)
	if err != nil {
		return nil, err
	}
	return applied(res), nil
}

func applied(res *labeler.ApplyResult) Response {
	r := Response{"success": true, "label": res.Label, "labelId": res.LabelID}
	if res.ThreadID != "" {
		r["threadId"] = res.ThreadID
	}
	if res.MessageID != "" {
		r["messageId"] = res.MessageID
	}
	return r
}

// batchTrain validates the selection synchronously and trains in the
// background.
func (d *Dispatcher) batchTrain(ctx context.Context, req Request, notify Notifier) (Response, error) {
	if req.Label == "" {
		return Response{"status": "error", "error": ErrMissingLabel.Error()}, ErrMissingLabel
	}
	emails, err := d.svc.SelectedEmails(ctx)
	if err != nil {
		return Response{"status": "error", "error": err.Error()}, err
	}

	// The job keeps the request's values (token, source) but not its deadline.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(d.bg, cancel)

	if notify == nil {
		notify = func(context.Context, Response) {}
	}

	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		defer cancel()
		defer stop()

		report, err := d.svc.BatchTrain(jobCtx, emails, req.Label, req.BatchSize, func(p batch.Progress) {
			notify(jobCtx, Response{"action": EventBatchTrainingUpdate, "processed": p.Processed, "total": p.Total})
		})

		done := Response{"action": EventBatchTrainingComplete, "processed": 0, "successCount": 0, "labelAppliedCount": 0}
		if report != nil {
			done["processed"] = report.Processed
			done["successCount"] = report.SuccessCount
			done["labelAppliedCount"] = report.LabelAppliedCount
		}
		if err != nil {
			done["error"] = err.Error()
			d.logger.Warn("batch training failed", logging.Label(req.Label), logging.Err(err))
		}
		notify(jobCtx, done)
	}()

	return Response{"status": "started", "totalEmails": len(emails)}, nil
}
