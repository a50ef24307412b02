package observer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/locator"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Classifier classifies and labels a set of rows.
type Classifier interface {
	ClassifyEmails(ctx context.Context, emails []locator.VisibleEmail, progress batch.ProgressFunc) (*batch.Report, error)
}

// ClassifyHandler returns a Handler that runs new rows through c.
func ClassifyHandler(c Classifier, logger *slog.Logger) Handler {
	logger = logging.WithComponent(logger, "observer")
	return func(ctx context.Context, emails []locator.VisibleEmail) {
		report, err := c.ClassifyEmails(ctx, emails, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("auto-classify failed", "emails", len(emails), logging.Err(err))
			return
		}
		if report != nil {
			logger.Info("auto-classified new emails",
				"emails", len(emails),
				"labeled", report.Results.Labeled,
				"skipped", report.Results.Skipped,
				"failed", report.Results.Failed)
		}
	}
}
