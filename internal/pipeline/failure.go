package pipeline

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/emailproof/internal/authmsg"
	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/dmitrijs2005/emailproof/internal/prover"
)

// Failure kinds that do not come from a stage's ErrorKind.
const (
	KindUnknownTemplate    = "UnknownTemplate"
	KindTemplateIDMismatch = "TemplateIDMismatch"
	KindInternal           = "Internal"
	// KindStoreUnavailable marks a proof that could not be persisted.
	KindStoreUnavailable = "StoreUnavailable"
)

// FailureOf classifies a stage error for storage on the request.
func FailureOf(err error) models.Failure {
	f := models.Failure{Kind: KindInternal, Detail: err.Error()}

	var (
		ce *canon.Error
		ve *dkim.VerificationError
		me *command.Error
		pe *prover.Error
	)
	switch {
	case errors.As(err, &pe):
		f.Kind, f.Retryable = pe.Kind.String(), pe.Retryable()
	case errors.As(err, &ve):
		f.Kind, f.Retryable = ve.Kind.String(), ve.Retryable()
	case errors.As(err, &me):
		f.Kind = me.Kind.String()
	case errors.As(err, &ce):
		f.Kind = ce.Kind.String()
	case errors.Is(err, command.ErrUnknownTemplate):
		f.Kind = KindUnknownTemplate
	case errors.Is(err, authmsg.ErrTemplateIDMismatch):
		f.Kind = KindTemplateIDMismatch
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		f.Kind, f.Retryable = prover.BackendUnavailable.String(), true
	}
	return f
}
