package canon

import (
	"errors"
	"fmt"
)

// ErrorKind classifies canonicalization failures. Every kind is fatal for the
// email: retrying the same bytes cannot succeed.
type ErrorKind int

const (
	// MissingOrMalformedSignature: no DKIM-Signature field, or one whose tag
	// list cannot be used.
	MissingOrMalformedSignature ErrorKind = iota + 1
	// MalformedHeader: the header section is not a sequence of fields.
	MalformedHeader
)

func (k ErrorKind) String() string {
	switch k {
	case MissingOrMalformedSignature:
		return "MissingOrMalformedSignature"
	case MalformedHeader:
		return "MalformedHeader"
	default:
		return "Unknown"
	}
}

var (
	ErrMissingOrMalformedSignature = errors.New("missing or malformed signature")
	ErrMalformedHeader             = errors.New("malformed header")
)

// Error carries the failure kind and the offending field or tag name.
type Error struct {
	Kind   ErrorKind
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("canonicalize: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("canonicalize: %s (%s): %s", e.Kind, e.Field, e.Reason)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrMissingOrMalformedSignature:
		return e.Kind == MissingOrMalformedSignature
	case ErrMalformedHeader:
		return e.Kind == MalformedHeader
	}
	return false
}

func sigError(field, reason string) error {
	return &Error{Kind: MissingOrMalformedSignature, Field: field, Reason: reason}
}
