// Package classifier is a client for the local prediction service.
//
// The service exposes POST /predict {text} -> {label, confidence},
// POST /train {text, label} -> {status} and POST /reset -> {message}. Failed
// calls carry {error} in the body. A connection failure is reported as
// ErrUnavailable, a non-2xx reply as *ServiceError.
package classifier
