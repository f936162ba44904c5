package dkim

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
)

// SignOptions configures Sign.
type SignOptions struct {
	Domain   string
	Selector string
	// Headers lists the fields to sign; "from" is added when missing.
	Headers []string
	// Canonicalization defaults to relaxed/relaxed.
	Canonicalization canon.Policy
	Key              crypto.Signer
	Timestamp        time.Time
}

const placeholder = "AAAA"

// Sign prepends an rsa-sha256 or ed25519-sha256 DKIM-Signature to raw.
// It backs fixture generation and tests.
func Sign(raw []byte, o SignOptions) ([]byte, error) {
	var alg string
	switch o.Key.(type) {
	case *rsa.PrivateKey:
		alg = "rsa-sha256"
	case ed25519.PrivateKey:
		alg = "ed25519-sha256"
	default:
		return nil, fmt.Errorf("unsupported signing key %T", o.Key)
	}

	c := o.Canonicalization
	if c.Header == "" {
		c.Header = canon.Relaxed
	}
	if c.Body == "" {
		c.Body = canon.Relaxed
	}

	headers := o.Headers
	hasFrom := false
	for _, h := range headers {
		if strings.EqualFold(h, "from") {
			hasFrom = true
		}
	}
	if !hasFrom {
		headers = append([]string{"from"}, headers...)
	}

	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	field := func(bh, b string) string {
		return fmt.Sprintf("DKIM-Signature: v=1; a=%s; c=%s/%s; d=%s; s=%s;\r\n\tt=%d; h=%s;\r\n\tbh=%s;\r\n\tb=%s\r\n",
			alg, c.Header, c.Body, o.Domain, o.Selector, ts.Unix(), strings.Join(headers, ":"), bh, b)
	}

	e, err := canon.Canonicalize(append([]byte(field(placeholder, placeholder)), raw...), canon.DeclaredPolicy)
	if err != nil {
		return nil, err
	}
	bodyHash := sha256.Sum256(e.Body)
	bh := base64.StdEncoding.EncodeToString(bodyHash[:])

	e, err = canon.Canonicalize(append([]byte(field(bh, placeholder)), raw...), canon.DeclaredPolicy)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(e.Header)

	var sig []byte
	switch k := o.Key.(type) {
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, digest[:])
	}
	if err != nil {
		return nil, err
	}

	return append([]byte(field(bh, base64.StdEncoding.EncodeToString(sig))), raw...), nil
}
