// Package common defines sentinel errors shared by the repositories and the
// pipeline. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrStatusConflict is returned by a compare-and-set on request status
	// when the stored status differs from the expected one.
	ErrStatusConflict = errors.New("request status conflict")

	// ErrIllegalTransition is returned when a status change is not allowed
	// by the request lifecycle.
	ErrIllegalTransition = errors.New("illegal request status transition")

	// ErrRequestInFlight means another invocation currently owns the request
	// (status Verifying or Proving).
	ErrRequestInFlight = errors.New("request is being processed")

	// ErrRequestFailed means the request already failed with a non-retryable
	// error and will not be re-run.
	ErrRequestFailed = errors.New("request failed permanently")
)
