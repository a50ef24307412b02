package gmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

const unknownErrorMessage = "Unknown error"

// APIError is a failed Gmail API call.
type APIError struct {
	// Op describes what was attempted, e.g. "failed to apply label".
	Op string
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	// Message is the API's error.message, or "Unknown error" when the body
	// carried none.
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// newAPIError converts a client library error into an *APIError.
func newAPIError(op string, err error) *APIError {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &APIError{Op: op, Message: err.Error(), Err: err}
	}

	msg := gerr.Message
	if msg == "" {
		msg = messageFromBody(gerr.Body)
	}
	if msg == "" {
		msg = unknownErrorMessage
	}
	return &APIError{Op: op, StatusCode: gerr.Code, Message: msg, Err: err}
}

// messageFromBody extracts error.message from a Google JSON error body.
func messageFromBody(body string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if body == "" || json.Unmarshal([]byte(body), &payload) != nil {
		return ""
	}
	return payload.Error.Message
}
