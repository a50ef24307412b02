package locator

import "strings"

// EmailRef is the open email as it appears on the page. It is produced per
// extraction and never persisted.
type EmailRef struct {
	ThreadID string `json:"threadId"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Text is the classifier input for an open email.
func (e EmailRef) Text() string {
	return e.Subject + "\n" + e.Body
}

// VisibleEmail is one row of a list view.
type VisibleEmail struct {
	ThreadID string `json:"threadId"`
	// Content is "subject\nsnippet", or the row's full text when neither
	// was found.
	Content string `json:"content"`
}

// Synthetic reports whether ThreadID is a positional fallback rather than a
// Gmail identifier. Synthetic ids cannot be passed to the Gmail API.
func (v VisibleEmail) Synthetic() bool {
	return IsSynthetic(v.ThreadID)
}

// Split returns the subject (first line) and body (the rest) of Content.
func (v VisibleEmail) Split() (subject, body string) {
	subject, body, _ = strings.Cut(v.Content, "\n")
	return subject, body
}

// IsSynthetic reports whether id was generated by the row fallback.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticPrefix)
}
