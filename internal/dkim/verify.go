// Package dkim verifies DomainKeys Identified Mail signatures over emails
// prepared by package canon.
package dkim

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/logging"
)

const defaultMinRSABits = 1024

// KeyProvider is satisfied by *Cache.
type KeyProvider interface {
	Get(ctx context.Context, domain, selector string) (*KeyRecord, error)
	Refresh(ctx context.Context, domain, selector string) (*KeyRecord, error)
}

// Verified describes a successfully verified signature and the exact byte
// ranges of the canonical email it covers.
type Verified struct {
	Domain         string
	Selector       string
	Algorithm      string
	KeyFingerprint [32]byte
	// PublicKey is the PKIX encoding of the verifying key.
	PublicKey    []byte
	HeaderRanges []canon.SignedField
	BodyRange    canon.Range
	SubjectRange canon.Range
	HasSubject   bool
}

type Verifier struct {
	keys       KeyProvider
	allowSHA1  bool
	minRSABits int
	now        func() time.Time
	log        logging.Logger
}

type Option func(*Verifier)

// WithSHA1 accepts rsa-sha1 signatures.
func WithSHA1() Option { return func(v *Verifier) { v.allowSHA1 = true } }

// WithMinRSABits rejects smaller RSA keys.
func WithMinRSABits(bits int) Option { return func(v *Verifier) { v.minRSABits = bits } }

// WithClock overrides time.Now for key expiry checks.
func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

func NewVerifier(keys KeyProvider, log logging.Logger, opts ...Option) *Verifier {
	if log == nil {
		log = logging.Nop()
	}
	v := &Verifier{
		keys:       keys,
		minRSABits: defaultMinRSABits,
		now:        time.Now,
		log:        log.With("module", "dkim.verifier"),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify checks the body hash and the header signature of e. e is not
// modified.
func (v *Verifier) Verify(ctx context.Context, e *canon.Email) (*Verified, error) {
	sig := e.Signature
	fail := func(kind ErrorKind, field, reason string, err error) error {
		return &VerificationError{Kind: kind, Domain: sig.Domain, Selector: sig.Selector, Field: field, Reason: reason, Err: err}
	}

	newHash, cryptoHash, err := v.hashFor(sig.HashAlgorithm())
	if err != nil {
		return nil, fail(SignatureInvalid, "a", err.Error(), nil)
	}

	h := newHash()
	h.Write(e.Body)
	if !bytes.Equal(h.Sum(nil), sig.BodyHash) {
		return nil, fail(BodyHashMismatch, "bh", "", nil)
	}

	rec, err := v.key(ctx, sig.Domain, sig.Selector)
	if err != nil {
		return nil, err
	}

	if rec.KeyType != sig.KeyAlgorithm() {
		return nil, fail(SignatureInvalid, "a", "key type "+rec.KeyType+" does not match "+sig.Algorithm, nil)
	}

	h = newHash()
	h.Write(e.Header)
	digest := h.Sum(nil)

	switch pub := rec.PublicKey.(type) {
	case *rsa.PublicKey:
		if pub.N.BitLen() < v.minRSABits {
			return nil, fail(SignatureInvalid, "p", "rsa key too small", nil)
		}
		if err := rsa.VerifyPKCS1v15(pub, cryptoHash, digest, sig.Signature); err != nil {
			return nil, fail(SignatureInvalid, "b", "", err)
		}
	case ed25519.PublicKey:
		if cryptoHash != crypto.SHA256 {
			return nil, fail(SignatureInvalid, "a", "ed25519 requires sha256", nil)
		}
		if !ed25519.Verify(pub, digest, sig.Signature) {
			return nil, fail(SignatureInvalid, "b", "", nil)
		}
	default:
		return nil, fail(SignatureInvalid, "p", "unsupported key", nil)
	}

	der, err := rec.PublicKeyDER()
	if err != nil {
		return nil, fail(SignatureInvalid, "p", "", err)
	}

	v.log.Debug(ctx, "signature verified", "domain", sig.Domain, "selector", sig.Selector, "algorithm", sig.Algorithm)

	return &Verified{
		Domain:         sig.Domain,
		Selector:       sig.Selector,
		Algorithm:      sig.Algorithm,
		KeyFingerprint: rec.Fingerprint,
		PublicKey:      der,
		HeaderRanges:   append([]canon.SignedField(nil), e.SignedFields...),
		BodyRange:      canon.Range{Start: 0, End: len(e.Body)},
		SubjectRange:   e.Subject,
		HasSubject:     e.HasSubject,
	}, nil
}

// key resolves the verifying key. An expired or revoked record is refreshed
// exactly once before giving up.
func (v *Verifier) key(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	rec, err := v.keys.Get(ctx, domain, selector)
	if err != nil {
		return nil, keyError(domain, selector, err)
	}
	if rec.UsableAt(v.now()) {
		return rec, nil
	}

	v.log.Warn(ctx, "key unusable, refreshing", "domain", domain, "selector", selector, "revoked", rec.Revoked)

	rec, err = v.keys.Refresh(ctx, domain, selector)
	if err != nil {
		return nil, keyError(domain, selector, err)
	}
	if !rec.UsableAt(v.now()) {
		reason := "expired"
		if rec.Revoked {
			reason = "revoked"
		}
		return nil, &VerificationError{Kind: KeyExpired, Domain: domain, Selector: selector, Field: "p", Reason: reason}
	}
	return rec, nil
}

func keyError(domain, selector string, err error) error {
	kind := KeyUnavailable
	if errors.Is(err, ErrKeyNotFound) {
		kind = KeyNotFound
	}
	return &VerificationError{Kind: kind, Domain: domain, Selector: selector, Err: err}
}

func (v *Verifier) hashFor(name string) (func() hash.Hash, crypto.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New, crypto.SHA256, nil
	case "sha1":
		if v.allowSHA1 {
			return sha1.New, crypto.SHA1, nil
		}
		return nil, 0, errors.New("sha1 signatures are disabled")
	}
	return nil, 0, errors.New("unsupported hash " + name)
}
