package prover

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/stretchr/testify/require"
)

const (
	testHash = "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testSalt = "0x046582bce36cdd0a8953b9d40b8f20d58302bacf3bcecffeb6741c98a52725e2"
)

type fixture struct {
	email    *canon.Email
	verified *dkim.Verified
	encoded  *command.Encoded
	salt     cryptox.AccountSalt
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := "From: test@example.com\r\nTo: relayer@example.com\r\nSubject: signHash " + testHash + "\r\n\r\nThis is a test email.\r\n"
	raw, err := dkim.Sign([]byte(msg), dkim.SignOptions{Domain: "example.com", Selector: "selector", Headers: []string{"from", "to", "subject"}, Key: key})
	require.NoError(t, err)

	e, err := canon.Canonicalize(raw, canon.DeclaredPolicy)
	require.NoError(t, err)

	rec, err := dkim.NewKeyRecord("example.com", "selector", key.Public())
	require.NoError(t, err)
	v, err := dkim.NewVerifier(dkim.NewCache(dkim.NewStaticKeySource(rec), time.Hour, nil), nil).Verify(context.Background(), e)
	require.NoError(t, err)

	tpl, err := command.DefaultRegistry().Lookup(big.NewInt(1))
	require.NoError(t, err)
	enc, err := command.Encode(e, tpl)
	require.NoError(t, err)

	salt, err := cryptox.ParseAccountSalt(testSalt)
	require.NoError(t, err)

	return fixture{email: e, verified: v, encoded: enc, salt: salt}
}

func (f fixture) witness(t *testing.T) *Witness {
	t.Helper()
	w, err := NewWitness(f.email, f.verified, f.encoded, f.salt)
	require.NoError(t, err)
	return w
}

// scriptedBackend returns errs in order, then delegates to next.
type scriptedBackend struct {
	mu    sync.Mutex
	errs  []error
	next  Backend
	proof func(*Witness) *Proof
	calls int
}

func (*scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Prove(ctx context.Context, w *Witness) (*Proof, error) {
	b.mu.Lock()
	b.calls++
	var err error
	if len(b.errs) > 0 {
		err, b.errs = b.errs[0], b.errs[1:]
	}
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if b.proof != nil {
		return b.proof(w), nil
	}
	return b.next.Prove(ctx, w)
}

func (b *scriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func fastConfig() Config {
	return Config{Timeout: 5 * time.Second, MaxRetries: 3, RetryBase: time.Millisecond}
}
