package dkim

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/stretchr/testify/require"
)

const testMessage = "From: Alice <alice@example.com>\r\n" +
	"To: relayer@example.org\r\n" +
	"Subject: signHash 0x0123456789abcdef\r\n" +
	"Date: Sat, 17 Oct 2026 10:00:00 +0000\r\n" +
	"\r\n" +
	"Please sign this hash.\r\n"

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 1024)
		if err != nil {
			panic(err)
		}
		rsaKey = k
	})
	return rsaKey
}

func testEd25519Key(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func signed(t *testing.T, o SignOptions) *canon.Email {
	t.Helper()
	if o.Domain == "" {
		o.Domain = "example.com"
	}
	if o.Selector == "" {
		o.Selector = "sel"
	}
	if o.Headers == nil {
		o.Headers = []string{"from", "to", "subject", "date"}
	}
	raw, err := Sign([]byte(testMessage), o)
	require.NoError(t, err)

	e, err := canon.Canonicalize(raw, canon.DeclaredPolicy)
	require.NoError(t, err)
	return e
}

func record(t *testing.T, pub any) *KeyRecord {
	t.Helper()
	rec, err := NewKeyRecord("example.com", "sel", pub)
	require.NoError(t, err)
	return rec
}

// seqSource returns its records in order, repeating the last one.
type seqSource struct {
	mu    sync.Mutex
	recs  []*KeyRecord
	err   error
	calls int
}

func (s *seqSource) FetchKey(_ context.Context, _, _ string) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls - 1
	if i >= len(s.recs) {
		i = len(s.recs) - 1
	}
	return s.recs[i].clone(), nil
}

func (s *seqSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
