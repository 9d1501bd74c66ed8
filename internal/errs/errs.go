// Package errs defines the typed error taxonomy shared across Archivist's
// pipeline stages, mirroring the kinds in spec.md §7 so callers can branch
// on disposition with errors.Is/errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure and its retry disposition.
type Kind string

const (
	KindInputNotFound       Kind = "InputNotFound"
	KindInputUnreadable     Kind = "InputUnreadable"
	KindModelLoadFailed     Kind = "ModelLoadFailed"
	KindTranscribeFailed    Kind = "TranscribeFailed"
	KindEncodeFailed        Kind = "EncodeFailed"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamRejected    Kind = "UpstreamRejected"
	KindLinkConflict        Kind = "LinkConflict"
	KindDeviceUnavailable   Kind = "DeviceUnavailable"
	KindStateConflict       Kind = "StateConflict"
	KindInconclusive        Kind = "Inconclusive"
)

// Retriable reports whether a job/operation failing with this Kind should
// be retried per spec.md §7's disposition table.
func (k Kind) Retriable() bool {
	switch k {
	case KindModelLoadFailed, KindTranscribeFailed, KindUpstreamUnavailable, KindDeviceUnavailable:
		return true
	default:
		return false
	}
}

// Error is a structured failure carrying a Kind, a human-readable message,
// and the attempt number it occurred on. It satisfies errors.Is against its
// Kind via Unwrap-free sentinel comparison (see Is).
type Error struct {
	Kind    Kind
	Message string
	Attempt int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errs.New(kind, "")) match any *Error with the same Kind,
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error with the given Kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error with the given Kind, message, and a cause chain.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns a zero-value *Error of the given Kind, suitable as the
// target for errors.Is(err, errs.Sentinel(errs.KindInputNotFound)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// OfKind extracts the Kind of err if it (or something it wraps) is an *Error.
// Returns ("", false) otherwise.
func OfKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
