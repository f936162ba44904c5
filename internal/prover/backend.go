// Package prover turns a verified email and its encoded command into a
// zero-knowledge proof using a pluggable proving backend.
package prover

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/cryptox"
)

// Backend generates a proof for a witness. Implementations must be safe to
// call again with the same witness after a BackendUnavailable error.
type Backend interface {
	Prove(ctx context.Context, w *Witness) (*Proof, error)
	Name() string
}

// DevBackend proves in-process without a circuit. The proof bytes are a
// keccak digest of the witness, so equal witnesses give equal proofs.
type DevBackend struct {
	// Delay simulates a slow prover. Cancellation of ctx is honoured.
	Delay time.Duration

	calls atomic.Int64
}

func NewDevBackend() *DevBackend { return &DevBackend{} }

func (*DevBackend) Name() string { return "dev" }

// Calls returns the number of Prove invocations.
func (b *DevBackend) Calls() int64 { return b.calls.Load() }

func (b *DevBackend) Prove(ctx context.Context, w *Witness) (*Proof, error) {
	b.calls.Add(1)

	if b.Delay > 0 {
		t := time.NewTimer(b.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, unavailable(b.Name(), "cancelled", ctx.Err())
		case <-t.C:
		}
	}

	if len(w.Header) == 0 || w.BodyRange.End > len(w.Body) {
		return nil, rejected(b.Name(), "inconsistent email ranges", nil)
	}

	salt := w.salt.Reveal()
	defer cryptox.Wipe(salt[:])

	params := make([]byte, 0)
	for _, p := range w.Params {
		params = append(params, p...)
	}
	digest := cryptox.Keccak256([]byte("emailproof/dev/v1"), w.Header, w.Body, w.KeyFingerprint[:], params, salt[:])

	return &Proof{Bytes: digest[:], PublicInputs: w.ExpectedPublicInputs()}, nil
}
