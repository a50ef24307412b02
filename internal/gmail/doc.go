// Package gmail wraps the Gmail REST API operations the labeler needs:
// listing and creating labels and adding labels to threads or messages.
//
// Every call takes a context and reports failures as *APIError, whose Message
// carries the API's error.message. Resolver implements find-or-create label
// resolution.
package gmail
