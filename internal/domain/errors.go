package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("invalid request")
	ErrEmptyInput           = fmt.Errorf("%w: input is empty", ErrValidation)
	ErrNoBackend            = fmt.Errorf("%w: no reasoning backend configured", ErrValidation)
	ErrBackendTimeout       = errors.New("reasoning backend timed out")
	ErrInvalidCredential    = errors.New("invalid credential")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrMalformedResponse    = errors.New("malformed backend response")
	ErrBackendUnavailable   = errors.New("reasoning backend failed")
	ErrConfirmationRequired = errors.New("command requires explicit confirmation")
	ErrNotExecutable        = errors.New("result has no executable command")
	ErrUnknownTarget        = errors.New("unknown execution target")
)

// FailureKind classifies why an interpret call produced no command.
type FailureKind string

const (
	FailureValidation        FailureKind = "validation"
	FailureTimeout           FailureKind = "timeout"
	FailureInvalidCredential FailureKind = "invalid_credential"
	FailureQuotaExceeded     FailureKind = "quota_exceeded"
	FailureMalformedResponse FailureKind = "malformed_response"
	FailureBackend           FailureKind = "backend"
)

// Failure is the structured error carried by an InterpretResult.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	cause   error
}

// NewFailure builds a failure of the given kind, keeping err for errors.Is.
func NewFailure(kind FailureKind, err error) *Failure {
	f := &Failure{Kind: kind, cause: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// Err converts the failure into an error wrapping the matching sentinel.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	if f.cause != nil && errors.Is(f.cause, f.sentinel()) {
		return f.cause
	}
	return fmt.Errorf("%w: %s", f.sentinel(), f.Message)
}

func (f *Failure) sentinel() error {
	switch f.Kind {
	case FailureTimeout:
		return ErrBackendTimeout
	case FailureInvalidCredential:
		return ErrInvalidCredential
	case FailureQuotaExceeded:
		return ErrQuotaExceeded
	case FailureMalformedResponse:
		return ErrMalformedResponse
	case FailureValidation:
		return ErrValidation
	default:
		return ErrBackendUnavailable
	}
}

// BackendError is returned by backend adapters. It carries the failure kind and
// the HTTP status (when there was one).
type BackendError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a BackendError against the sentinel for its kind.
func (e *BackendError) Is(target error) bool {
	f := Failure{Kind: e.Kind}
	return target == f.sentinel()
}

// FailureKindOf maps an arbitrary backend error onto a failure kind.
func FailureKindOf(err error) FailureKind {
	var be *BackendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &be):
		return be.Kind
	case errors.Is(err, ErrBackendTimeout):
		return FailureTimeout
	case errors.Is(err, ErrInvalidCredential):
		return FailureInvalidCredential
	case errors.Is(err, ErrQuotaExceeded):
		return FailureQuotaExceeded
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformedResponse
	default:
		return FailureBackend
	}
}
