// Package fault defines the error taxonomy shared by the speech controllers,
// the chat client and the persistence layer.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for notification and HTTP mapping purposes.
type Kind string

const (
	UnsupportedCapability Kind = "unsupported_capability"
	PermissionDenied      Kind = "permission_denied"
	NoSpeechDetected      Kind = "no_speech_detected"
	MicrophoneUnavailable Kind = "microphone_unavailable"
	LanguageUnsupported   Kind = "language_unsupported"
	SynthesisError        Kind = "synthesis_error"
	ApiError              Kind = "api_error"
	PersistenceError      Kind = "persistence_error"
	Unknown               Kind = "unknown"
)

// Error carries a Kind together with the operation that failed.
// Status is the upstream HTTP status for ApiError, zero otherwise.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Op != "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		msg = fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Persistence is shorthand for New(PersistenceError, op, err).
func Persistence(op string, err error) *Error {
	return New(PersistenceError, op, err)
}

// API builds an ApiError with the upstream status code (0 for transport failures).
func API(op string, status int, err error) *Error {
	return &Error{Kind: ApiError, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
