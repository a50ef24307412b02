package labeler

import (
	"context"
	"strings"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Prediction statuses and skip reasons.
const (
	StatusLabeled = "labeled"
	StatusSkipped = "skipped"

	ReasonLowConfidence = "low_confidence"
	ReasonEmptyContent  = "empty_content"
)

// PredictionOutcome is the result of predict-and-apply on the open email.
type PredictionOutcome struct {
	Status     string  `json:"status"`
	ThreadID   string  `json:"threadId,omitempty"`
	Label      string  `json:"label,omitempty"`
	LabelID    string  `json:"labelId,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// TestPrediction classifies free text without applying anything.
func (s *Service) TestPrediction(ctx context.Context, text string) (classifier.Prediction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return classifier.Prediction{}, ErrNoContent
	}
	return s.classifier.Predict(ctx, text)
}

// PredictAndApply classifies the open email's body and applies the predicted
// label when its confidence reaches the single-email threshold.
func (s *Service) PredictAndApply(ctx context.Context) (*PredictionOutcome, error) {
	ref, err := s.EmailContent(ctx)
	if err != nil {
		return nil, err
	}
	if ref == nil || strings.TrimSpace(ref.Body) == "" {
		return nil, ErrNoContent
	}

	p, err := s.classifier.Predict(ctx, ref.Body)
	if err != nil {
		return nil, err
	}

	out := &PredictionOutcome{ThreadID: ref.ThreadID, Label: p.Label, Confidence: p.Confidence}
	if !p.Meets(s.settings.SingleThreshold) {
		s.logger.Info("skipping label, low confidence",
			logging.Thread(ref.ThreadID), logging.Confidence(p.Confidence))
		out.Status = StatusSkipped
		out.Reason = ReasonLowConfidence
		s.record(ctx, ref.ThreadID, p.Label, &p.Confidence, instrumentation.OutcomeSkipped, nil)
		return out, nil
	}

	if ref.ThreadID == "" {
		return nil, ErrNoThread
	}

	api, err := s.gmailClient(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.apply(ctx, api, Target{ThreadID: ref.ThreadID}, p.Label, &p.Confidence)
	if err != nil {
		return nil, err
	}
	s.scheduleRefresh()

	out.Status = StatusLabeled
	out.LabelID = res.LabelID
	return out, nil
}

// ClassifyVisible predicts a label for every visible email and applies it
// when the confidence reaches the batch threshold.
func (s *Service) ClassifyVisible(ctx context.Context, progress batch.ProgressFunc) (*batch.Report, error) {
	emails, err := s.VisibleEmails(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.ClassifyEmails(ctx, emails, progress)
}

// ClassifyEmails is ClassifyVisible over an explicit set of rows.
func (s *Service) ClassifyEmails(ctx context.Context, emails []locator.VisibleEmail, progress batch.ProgressFunc) (*batch.Report, error) {
	if len(emails) == 0 {
		return nil, ErrNoEmails
	}

	api, err := s.gmailClient(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]batch.Item, len(emails))
	for i, e := range emails {
		items[i] = batch.Item{ID: e.ThreadID, Content: e.Content}
	}

	ctx = WithSource(ctx, instrumentation.SourceBatch)
	report, err := s.coordinator(progress).Run(ctx, items, func(ctx context.Context, it batch.Item) batch.Result {
		return s.classifyItem(ctx, api, it)
	})
	if report != nil && report.Results.Labeled > 0 {
		s.scheduleRefresh()
	}
	return report, err
}

func (s *Service) classifyItem(ctx context.Context, api GmailAPI, it batch.Item) batch.Result {
	if strings.TrimSpace(it.Content) == "" {
		return batch.NewSkippedResult(it.ID, ReasonEmptyContent, 0)
	}

	p, err := s.classifier.Predict(ctx, it.Content)
	if err != nil {
		return batch.NewErrorResult(it.ID, err)
	}
	if !p.Meets(s.settings.BatchThreshold) {
		s.record(ctx, it.ID, p.Label, &p.Confidence, instrumentation.OutcomeSkipped, nil)
		res := batch.NewSkippedResult(it.ID, ReasonLowConfidence, p.Confidence)
		res.Label = p.Label
		return res
	}

	if _, err := s.apply(ctx, api, Target{ThreadID: it.ID}, p.Label, &p.Confidence); err != nil {
		res := batch.NewErrorResult(it.ID, err)
		res.Label = p.Label
		res.Confidence = p.Confidence
		return res
	}
	return batch.NewLabeledResult(it.ID, p.Label, p.Confidence)
}

func (s *Service) coordinator(progress batch.ProgressFunc) *batch.Coordinator {
	return s.coordinatorSized(s.settings.BatchSize, progress)
}

func (s *Service) coordinatorSized(size int, progress batch.ProgressFunc) *batch.Coordinator {
	return batch.New(size,
		batch.WithPause(s.settings.BatchPause),
		batch.WithSleeper(s.sleep),
		batch.WithProgress(progress),
		batch.WithMetrics(s.metrics),
		batch.WithLogger(s.logger),
	)
}
