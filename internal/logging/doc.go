// Package logging provides structured logging utilities for inboxlabeler.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a component logger with standard attributes:
//
//	logger := logging.WithComponent(slog.Default(), "labeler")
//	logger.Info("label applied",
//	    logging.Thread(threadID),
//	    logging.Label(name),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
// Bearer tokens are never logged directly; use SanitizeToken. Email content is
// only ever logged as a short Truncate preview at debug level.
package logging
