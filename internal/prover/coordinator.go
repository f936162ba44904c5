package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/dmitrijs2005/emailproof/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const maxRetryDelay = 30 * time.Second

type Config struct {
	// Timeout bounds the whole Generate call, retries included.
	Timeout    time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
	// RatePerSecond limits submissions to the backend; zero means unlimited.
	RatePerSecond float64
	Burst         int
}

func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Minute,
		MaxRetries:    3,
		RetryBase:     2 * time.Second,
		RatePerSecond: 1,
		Burst:         1,
	}
}

// Coordinator builds the witness, drives the backend and checks the result.
type Coordinator struct {
	backend Backend
	cfg     Config
	limiter *rate.Limiter
	log     logging.Logger
}

func NewCoordinator(backend Backend, cfg Config, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Coordinator{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With("module", "prover", "backend", backend.Name()),
	}
}

// Generate proves that the verified email carries the encoded command and
// binds it to salt. Transient backend failures are retried with exponential
// backoff until MaxRetries or the timeout is reached.
func (c *Coordinator) Generate(ctx context.Context, e *canon.Email, v *dkim.Verified, enc *command.Encoded, salt cryptox.AccountSalt) (*Proof, error) {
	w, err := NewWitness(e, v, enc, salt)
	if err != nil {
		return nil, rejected("local", "build witness", err)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries,
		retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(c.cfg.RetryBase)))

	var (
		proof    *Proof
		attempts int
		lastErr  error
	)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = unavailable(c.backend.Name(), "rate limited", err)
			return lastErr
		}

		p, err := c.backend.Prove(ctx, w)
		if err != nil {
			lastErr = err
			var pe *Error
			if errors.As(err, &pe) && pe.Retryable() {
				c.log.Warn(ctx, "prover attempt failed", "attempt", attempts, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}

		proof = p
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			err = unavailable(c.backend.Name(), fmt.Sprintf("deadline after %d attempts", attempts), errors.Join(ctx.Err(), lastErr))
		}
		var pe *Error
		if !errors.As(err, &pe) {
			err = unavailable(c.backend.Name(), "", err)
		}
		c.log.Error(ctx, "proof generation failed", "template_id", w.TemplateID.String(), "attempts", attempts, "error", err)
		return nil, err
	}

	if err := c.validate(w, proof); err != nil {
		c.log.Error(ctx, "proof rejected", "template_id", w.TemplateID.String(), "error", err)
		return nil, err
	}

	c.log.Info(ctx, "proof generated", "template_id", w.TemplateID.String(), "attempts", attempts, "proof_len", len(proof.Bytes))
	return proof, nil
}

// validate compares the proof's public inputs with the locally computed
// ones. Extra trailing inputs are allowed.
func (c *Coordinator) validate(w *Witness, p *Proof) error {
	if len(p.Bytes) == 0 {
		return &Error{Kind: WitnessRejected, Backend: c.backend.Name(), Reason: "empty proof"}
	}

	want := w.ExpectedPublicInputs()
	for i, expected := range want {
		if i >= len(p.PublicInputs) {
			return &Error{Kind: PublicInputMismatch, Backend: c.backend.Name(), Index: i, Reason: "missing"}
		}
		if p.PublicInputs[i] != expected {
			return &Error{Kind: PublicInputMismatch, Backend: c.backend.Name(), Index: i}
		}
	}
	return nil
}
