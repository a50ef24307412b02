package labeler

import "errors"

var (
	// ErrNoThread means no Gmail thread id could be determined for the target.
	ErrNoThread = errors.New("could not get thread ID from email")
	// ErrNoContent means there was no email text to classify or train on.
	ErrNoContent = errors.New("no valid email content")
	// ErrInvalidContent means a list row had no subject line to train on.
	ErrInvalidContent = errors.New("invalid email content")
	// ErrNoSelection means batch training found no selected emails.
	ErrNoSelection = errors.New("no emails selected for batch training")
	// ErrNoEmails means no email rows are visible.
	ErrNoEmails = errors.New("no emails found on page")
	// ErrAuthentication wraps failures to obtain a Gmail client.
	ErrAuthentication = errors.New("could not get authentication token")
)
