// Package apperrors defines the error taxonomy shared by the query pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindCredential        Kind = "credential"
	KindValidation        Kind = "validation"
	KindDirective         Kind = "directive"
	KindAuth              Kind = "auth"
	KindQuota             Kind = "quota"
	KindNetwork           Kind = "network"
	KindMalformedResponse Kind = "malformed_response"
	KindUnknown           Kind = "unknown"
)

// Sentinels for errors.Is checks.
var (
	ErrCredential        = &Error{Kind: KindCredential}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrDirective         = &Error{Kind: KindDirective}
	ErrAuth              = &Error{Kind: KindAuth}
	ErrQuota             = &Error{Kind: KindQuota}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
)

// Error is a classified failure raised at a component boundary.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels above work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork
}

// New creates a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies err with a message.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage renders err for display in the UI.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindCredential:
		return "Missing or invalid credentials: " + err.Error()
	case KindValidation:
		return "Invalid request: " + err.Error()
	case KindDirective:
		return "The model returned a malformed directive: " + err.Error()
	case KindAuth:
		return "The analytics service rejected the credentials: " + err.Error()
	case KindQuota:
		return "Quota exceeded, try again later: " + err.Error()
	case KindNetwork:
		return "A remote service could not be reached: " + err.Error()
	case KindMalformedResponse:
		return "A remote service returned an unexpected response: " + err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}
}
