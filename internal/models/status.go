package models

import (
	"database/sql/driver"
	"fmt"
)

// Status is the lifecycle state of a proof request.
type Status int

const (
	StatusUnknown Status = iota
	StatusReceived
	StatusVerifying
	StatusProving
	StatusProved
	StatusFailed
)

var statusNames = map[Status]string{
	StatusReceived:  "received",
	StatusVerifying: "verifying",
	StatusProving:   "proving",
	StatusProved:    "proved",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st, n := range statusNames {
		if n == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown request status %q", s)
}

// InFlight reports whether some invocation currently owns the request.
func (s Status) InFlight() bool {
	return s == StatusVerifying || s == StatusProving
}

// Value stores the status as its textual name.
func (s Status) Value() (driver.Value, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid request status %d", int(s))
	}
	return s.String(), nil
}

// Scan reads a textual status written by Value.
func (s *Status) Scan(src any) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	st, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

var transitions = map[Status][]Status{
	StatusReceived:  {StatusVerifying, StatusFailed},
	StatusVerifying: {StatusProving, StatusFailed},
	StatusProving:   {StatusProved, StatusFailed},
	StatusFailed:    {StatusReceived},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Proved is terminal. Failed -> Received is legal here; whether the failure
// allows a retry is decided by the caller from Failure.Retryable.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
