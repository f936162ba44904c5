// Package pipeline drives one proof request through canonicalization,
// signature verification, command encoding, proving and assembly, advancing
// the stored request status with a compare-and-set at every step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/authmsg"
	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/common"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/dmitrijs2005/emailproof/internal/logging"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/dmitrijs2005/emailproof/internal/prover"
	"github.com/google/uuid"
)

// statusWriteTimeout bounds status updates made after the caller's context
// is done.
const statusWriteTimeout = 10 * time.Second

// RequestStore is the slice of the request repository the pipeline needs.
type RequestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Request, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.Status) error
	SetResult(ctx context.Context, id uuid.UUID, result []byte) error
	RecordFailure(ctx context.Context, id uuid.UUID, from models.Status, f models.Failure) error
}

type Verifier interface {
	Verify(ctx context.Context, e *canon.Email) (*dkim.Verified, error)
}

type TemplateLookup interface {
	Lookup(id *big.Int) (*command.Template, error)
}

type ProofGenerator interface {
	Generate(ctx context.Context, e *canon.Email, v *dkim.Verified, enc *command.Encoded, salt cryptox.AccountSalt) (*prover.Proof, error)
}

// Input is one invocation. Salt is used for this run only and never stored.
type Input struct {
	RequestID uuid.UUID
	Raw       canon.RawEmail
	Salt      cryptox.AccountSalt
}

func (in Input) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("request_id", in.RequestID.String()),
		slog.Int("raw_len", len(in.Raw)),
		slog.Any("salt", in.Salt),
	)
}

type Pipeline struct {
	store     RequestStore
	verifier  Verifier
	templates TemplateLookup
	prover    ProofGenerator
	policy    canon.Policy
	log       logging.Logger
}

type Option func(*Pipeline)

// WithPolicy overrides the canonicalization declared by the signature.
func WithPolicy(p canon.Policy) Option { return func(pl *Pipeline) { pl.policy = p } }

func New(store RequestStore, verifier Verifier, templates TemplateLookup, gen ProofGenerator, log logging.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	p := &Pipeline{
		store:     store,
		verifier:  verifier,
		templates: templates,
		prover:    gen,
		policy:    canon.DeclaredPolicy,
		log:       log.With("module", "pipeline"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes the request named by in.RequestID. A request that is
// already Proved returns its stored message without touching the backend.
func (p *Pipeline) Run(ctx context.Context, in Input) (*authmsg.Message, error) {
	log := p.log.With("request_id", in.RequestID.String())

	req, err := p.store.Get(ctx, in.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", in.RequestID, err)
	}

	switch {
	case req.Status == models.StatusProved:
		log.Debug(ctx, "request already proved")
		return authmsg.Decode(req.Result)
	case req.Status.InFlight():
		return nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, common.ErrRequestInFlight)
	case req.Status == models.StatusFailed:
		if req.Failure == nil || !req.Failure.Retryable {
			return nil, failedError(req.Failure)
		}
		if err := p.store.CompareAndSetStatus(ctx, req.ID, models.StatusFailed, models.StatusReceived); err != nil {
			return nil, err
		}
		log.Info(ctx, "retrying failed request", "previous_failure", req.Failure.Kind)
	case req.Status != models.StatusReceived:
		return nil, fmt.Errorf("request %s has status %s: %w", req.ID, req.Status, common.ErrIllegalTransition)
	}

	return p.run(ctx, log, req, in)
}

func (p *Pipeline) run(ctx context.Context, log logging.Logger, req *models.Request, in Input) (*authmsg.Message, error) {
	e, err := canon.Canonicalize(in.Raw, p.policy)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusReceived, err)
	}

	if err := p.store.CompareAndSetStatus(ctx, req.ID, models.StatusReceived, models.StatusVerifying); err != nil {
		return nil, err
	}
	log.Info(ctx, "verifying", "domain", e.Signature.Domain, "selector", e.Signature.Selector)

	v, err := p.verifier.Verify(ctx, e)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusVerifying, err)
	}

	tpl, err := p.templates.Lookup(req.EmailTxAuth.TemplateID)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusVerifying, err)
	}
	enc, err := command.Encode(e, tpl)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusVerifying, err)
	}

	if err := p.store.CompareAndSetStatus(ctx, req.ID, models.StatusVerifying, models.StatusProving); err != nil {
		return nil, err
	}
	log.Info(ctx, "proving", "template_id", tpl.ID.String(), "skipped_prefix", enc.SkippedPrefix)

	proof, err := p.prover.Generate(ctx, e, v, enc, in.Salt)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusProving, err)
	}

	msg, err := authmsg.Assemble(req.EmailTxAuth.TemplateID, enc, proof)
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusProving, err)
	}
	data, err := msg.Encode()
	if err != nil {
		return nil, p.fail(ctx, log, req.ID, models.StatusProving, err)
	}

	wctx, cancel := detached(ctx)
	defer cancel()
	if err := p.store.SetResult(wctx, req.ID, data); err != nil {
		err = fmt.Errorf("store result: %w", err)
		f := models.Failure{Kind: KindStoreUnavailable, Detail: err.Error(), Retryable: true}
		if rerr := p.store.RecordFailure(wctx, req.ID, models.StatusProving, f); rerr != nil {
			log.Error(ctx, "record failure", "kind", f.Kind, "error", rerr)
			return nil, errors.Join(err, rerr)
		}
		log.Warn(ctx, "request failed", "stage", models.StatusProving.String(), "kind", f.Kind, "retryable", true, "error", err)
		return nil, err
	}

	log.Info(ctx, "request proved", "message_len", len(data))
	return msg, nil
}

// fail records err on the request and returns it unchanged. The write uses a
// context detached from ctx so a cancelled run still leaves the request in
// Failed rather than stuck mid-flight.
func (p *Pipeline) fail(ctx context.Context, log logging.Logger, id uuid.UUID, from models.Status, cause error) error {
	f := FailureOf(cause)

	wctx, cancel := detached(ctx)
	defer cancel()

	if err := p.store.RecordFailure(wctx, id, from, f); err != nil {
		log.Error(ctx, "record failure", "kind", f.Kind, "error", err)
		return errors.Join(cause, err)
	}

	log.Warn(ctx, "request failed", "stage", from.String(), "kind", f.Kind, "retryable", f.Retryable, "error", cause)
	return cause
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}

func failedError(f *models.Failure) error {
	if f == nil {
		return common.ErrRequestFailed
	}
	return fmt.Errorf("%w: %s: %s", common.ErrRequestFailed, f.Kind, f.Detail)
}
