package prover

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// BackendUnavailable covers timeouts, transport failures and overloaded
	// backends. Retryable.
	BackendUnavailable ErrorKind = iota + 1
	// WitnessRejected: the backend found the witness structurally invalid.
	WitnessRejected
	// PublicInputMismatch: the proof does not commit to the expected inputs.
	PublicInputMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case BackendUnavailable:
		return "BackendUnavailable"
	case WitnessRejected:
		return "WitnessRejected"
	case PublicInputMismatch:
		return "PublicInputMismatch"
	default:
		return "Unknown"
	}
}

var (
	ErrBackendUnavailable  = errors.New("proving backend unavailable")
	ErrWitnessRejected     = errors.New("witness rejected")
	ErrPublicInputMismatch = errors.New("public input mismatch")
)

// Error is returned by backends and the Coordinator. Index is the offending
// public input for PublicInputMismatch.
type Error struct {
	Kind    ErrorKind
	Backend string
	Index   int
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("prover %s: %s", e.Backend, e.Kind)
	if e.Kind == PublicInputMismatch {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrBackendUnavailable:
		return e.Kind == BackendUnavailable
	case ErrWitnessRejected:
		return e.Kind == WitnessRejected
	case ErrPublicInputMismatch:
		return e.Kind == PublicInputMismatch
	}
	return false
}

func (e *Error) Retryable() bool { return e.Kind == BackendUnavailable }

func unavailable(backend, reason string, err error) error {
	return &Error{Kind: BackendUnavailable, Backend: backend, Reason: reason, Err: err}
}

func rejected(backend, reason string, err error) error {
	return &Error{Kind: WitnessRejected, Backend: backend, Reason: reason, Err: err}
}
