package labeler

import (
	"context"
	"log/slog"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Target identifies what to label. MessageID, when set, labels only that
// message instead of the whole thread.
type Target struct {
	ThreadID  string `json:"threadId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// ApplyResult describes a successful label application.
type ApplyResult struct {
	ThreadID  string `json:"threadId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Label     string `json:"label"`
	LabelID   string `json:"labelId"`
}

// EmailContent returns the open email, or nil when none can be located.
func (s *Service) EmailContent(ctx context.Context) (*locator.EmailRef, error) {
	p, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := s.locator.OpenEmail(p)
	if !ok {
		return nil, nil
	}
	return ref, nil
}

// VisibleEmails lists the email rows on the page. With selectedOnly, only
// rows the user has selected are returned.
func (s *Service) VisibleEmails(ctx context.Context, selectedOnly bool) ([]locator.VisibleEmail, error) {
	p, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.locator.VisibleEmails(p, selectedOnly), nil
}

// ApplyLabel adds label to the email that is open in the tab.
func (s *Service) ApplyLabel(ctx context.Context, label string) (*ApplyResult, error) {
	p, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	threadID, ok := s.locator.OpenThreadID(p)
	if !ok {
		return nil, ErrNoThread
	}
	return s.ApplyLabelToEmail(ctx, Target{ThreadID: threadID}, label)
}

// ApplyLabelToEmail adds label to the given thread or message.
func (s *Service) ApplyLabelToEmail(ctx context.Context, target Target, label string) (*ApplyResult, error) {
	api, err := s.gmailClient(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.apply(ctx, api, target, label, nil)
	if err != nil {
		return nil, err
	}
	s.scheduleRefresh()
	return res, nil
}

// apply resolves label and modifies the target. It does not refresh.
func (s *Service) apply(ctx context.Context, api GmailAPI, target Target, label string, confidence *float64) (*ApplyResult, error) {
	logger := s.logger.With(logging.Thread(target.ThreadID), logging.Label(label))

	if target.MessageID == "" && (target.ThreadID == "" || locator.IsSynthetic(target.ThreadID)) {
		s.record(ctx, target.ThreadID, label, confidence, instrumentation.OutcomeFailed, ErrNoThread)
		return nil, ErrNoThread
	}

	labelID, err := s.resolver.Resolve(ctx, api, label)
	if err == nil {
		err = s.modify(ctx, api, target, labelID)
	}
	if err != nil {
		logger.Warn("failed to apply label", logging.Err(err))
		s.record(ctx, s.recordID(target), label, confidence, instrumentation.OutcomeFailed, err)
		return nil, err
	}

	logger.Info("label applied", slog.String("label_id", labelID))
	s.record(ctx, s.recordID(target), label, confidence, instrumentation.OutcomeLabeled, nil)
	return &ApplyResult{
		ThreadID:  target.ThreadID,
		MessageID: target.MessageID,
		Label:     label,
		LabelID:   labelID,
	}, nil
}

// applyID adds an already resolved label id. Used by batch training, which
// resolves once per run.
func (s *Service) applyID(ctx context.Context, api GmailAPI, threadID, label, labelID string) error {
	target := Target{ThreadID: threadID}
	if threadID == "" || locator.IsSynthetic(threadID) {
		s.record(ctx, threadID, label, nil, instrumentation.OutcomeFailed, ErrNoThread)
		return ErrNoThread
	}
	if err := s.modify(ctx, api, target, labelID); err != nil {
		s.record(ctx, threadID, label, nil, instrumentation.OutcomeFailed, err)
		return err
	}
	s.record(ctx, threadID, label, nil, instrumentation.OutcomeLabeled, nil)
	return nil
}

func (s *Service) modify(ctx context.Context, api GmailAPI, target Target, labelID string) error {
	if target.MessageID != "" {
		return api.ModifyMessage(ctx, target.MessageID, []string{labelID})
	}
	return api.ModifyThread(ctx, target.ThreadID, []string{labelID})
}

func (s *Service) recordID(target Target) string {
	if target.MessageID != "" {
		return target.MessageID
	}
	return target.ThreadID
}
