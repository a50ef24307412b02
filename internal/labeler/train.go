package labeler

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// TrainReport summarises a batch training run.
type TrainReport struct {
	Label             string        `json:"label"`
	Processed         int           `json:"processed"`
	SuccessCount      int           `json:"successCount"`
	LabelAppliedCount int           `json:"labelAppliedCount"`
	Batch             *batch.Report `json:"batch,omitempty"`
}

// TrainAndApply trains the classifier on the open email and then labels it.
func (s *Service) TrainAndApply(ctx context.Context, label string) (*ApplyResult, error) {
	ref, err := s.EmailContent(ctx)
	if err != nil {
		return nil, err
	}
	if ref == nil || (strings.TrimSpace(ref.Subject) == "" && strings.TrimSpace(ref.Body) == "") {
		return nil, ErrNoContent
	}
	if ref.ThreadID == "" {
		return nil, ErrNoThread
	}

	if err := s.classifier.Train(ctx, ref.Text(), label); err != nil {
		return nil, err
	}
	return s.ApplyLabelToEmail(ctx, Target{ThreadID: ref.ThreadID}, label)
}

// SelectedEmails returns the rows selected for batch training.
func (s *Service) SelectedEmails(ctx context.Context) ([]locator.VisibleEmail, error) {
	emails, err := s.VisibleEmails(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, ErrNoSelection
	}
	return emails, nil
}

// BatchTrain trains the classifier on every email with label and adds the
// label to each thread whose training succeeded. The Gmail client and label
// id are obtained once for the whole run. batchSize <= 0 uses the configured
// size.
func (s *Service) BatchTrain(ctx context.Context, emails []locator.VisibleEmail, label string, batchSize int, progress batch.ProgressFunc) (*TrainReport, error) {
	if len(emails) == 0 {
		return nil, ErrNoSelection
	}
	if batchSize <= 0 {
		batchSize = s.settings.BatchSize
	}

	api, err := s.gmailClient(ctx)
	if err != nil {
		return nil, err
	}
	labelID, err := s.resolver.Resolve(ctx, api, label)
	if err != nil {
		return nil, err
	}
	s.logger.Info("starting batch training",
		logging.Label(label), logging.Operation("batch_train"))

	items := make([]batch.Item, len(emails))
	for i, e := range emails {
		items[i] = batch.Item{ID: e.ThreadID, Content: e.Content}
	}

	var trained, applied atomic.Int64
	ctx = WithSource(ctx, instrumentation.SourceBatch)
	report, runErr := s.coordinatorSized(batchSize, progress).Run(ctx, items, func(ctx context.Context, it batch.Item) batch.Result {
		subject, body := locator.VisibleEmail{ThreadID: it.ID, Content: it.Content}.Split()
		if strings.TrimSpace(subject) == "" {
			return batch.NewErrorResult(it.ID, ErrInvalidContent)
		}
		if err := s.classifier.Train(ctx, subject+"\n"+body, label); err != nil {
			return batch.NewErrorResult(it.ID, err)
		}
		trained.Add(1)

		if err := s.applyID(ctx, api, it.ID, label, labelID); err != nil {
			res := batch.NewErrorResult(it.ID, err)
			res.Label = label
			return res
		}
		applied.Add(1)
		return batch.Result{ID: it.ID, Outcome: batch.OutcomeLabeled, Label: label}
	})

	out := &TrainReport{
		Label:             label,
		SuccessCount:      int(trained.Load()),
		LabelAppliedCount: int(applied.Load()),
		Batch:             report,
	}
	if report != nil {
		out.Processed = report.Processed
	}
	s.scheduleRefresh()
	s.logger.Info("batch training complete",
		logging.Label(label),
		"processed", out.Processed,
		"trained", out.SuccessCount,
		"applied", out.LabelAppliedCount)
	return out, runErr
}
