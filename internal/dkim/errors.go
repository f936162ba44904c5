package dkim

import (
	"errors"
	"fmt"
)

// ErrorKind classifies verification failures.
type ErrorKind int

const (
	BodyHashMismatch ErrorKind = iota + 1
	SignatureInvalid
	// KeyExpired: the key record was expired or revoked, also after one refresh.
	KeyExpired
	KeyNotFound
	// KeyUnavailable: the key source could not be reached. The only kind
	// worth retrying.
	KeyUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case BodyHashMismatch:
		return "BodyHashMismatch"
	case SignatureInvalid:
		return "SignatureInvalid"
	case KeyExpired:
		return "KeyExpired"
	case KeyNotFound:
		return "KeyNotFound"
	case KeyUnavailable:
		return "KeyUnavailable"
	default:
		return "Unknown"
	}
}

var (
	ErrBodyHashMismatch = errors.New("body hash mismatch")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrKeyExpired       = errors.New("key expired or revoked")
	ErrKeyUnavailable   = errors.New("key source unavailable")

	// ErrKeyNotFound is returned by key sources that do not know the
	// (domain, selector) pair.
	ErrKeyNotFound = errors.New("key not found")
)

// VerificationError reports why a signature was rejected. Field names the
// signature tag involved (bh, b, a) when there is one.
type VerificationError struct {
	Kind     ErrorKind
	Domain   string
	Selector string
	Field    string
	Reason   string
	Err      error
}

func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("verify %s._domainkey.%s: %s", e.Selector, e.Domain, e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Err }

func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrBodyHashMismatch:
		return e.Kind == BodyHashMismatch
	case ErrSignatureInvalid:
		return e.Kind == SignatureInvalid
	case ErrKeyExpired:
		return e.Kind == KeyExpired
	case ErrKeyNotFound:
		return e.Kind == KeyNotFound
	case ErrKeyUnavailable:
		return e.Kind == KeyUnavailable
	}
	return false
}

// Retryable reports whether running the same email again may succeed.
func (e *VerificationError) Retryable() bool { return e.Kind == KeyUnavailable }
