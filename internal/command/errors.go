package command

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	TemplateMismatch ErrorKind = iota + 1
	ParameterTypeError
	// SourceMissing: the subject is not signed, or the body has no command line.
	SourceMissing
)

func (k ErrorKind) String() string {
	switch k {
	case TemplateMismatch:
		return "TemplateMismatch"
	case ParameterTypeError:
		return "ParameterTypeError"
	case SourceMissing:
		return "SourceMissing"
	default:
		return "Unknown"
	}
}

// EndOfInput stands for an exhausted command or template in Expected/Found.
const EndOfInput = "<end>"

var (
	ErrTemplateMismatch = errors.New("command does not match template")
	ErrParameterType    = errors.New("parameter type error")
	ErrSourceMissing    = errors.New("command source missing")
	ErrUnknownTemplate  = errors.New("unknown template")
)

// Error describes the first token where the command and the template
// disagree. Position is the token index.
type Error struct {
	Kind     ErrorKind
	Template string
	Position int
	Expected string
	Found    string
	Reason   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("command (template %s): %s", e.Template, e.Kind)
	if e.Kind != SourceMissing {
		msg += fmt.Sprintf(" at token %d: expected %q, found %q", e.Position, e.Expected, e.Found)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTemplateMismatch:
		return e.Kind == TemplateMismatch
	case ErrParameterType:
		return e.Kind == ParameterTypeError
	case ErrSourceMissing:
		return e.Kind == SourceMissing
	}
	return false
}
