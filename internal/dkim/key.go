package dkim

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/cryptox"
)

// KeyRecord is a published domain key as seen at FetchedAt.
type KeyRecord struct {
	Domain    string
	Selector  string
	KeyType   string // rsa or ed25519
	PublicKey crypto.PublicKey
	// Fingerprint is the SHA-256 of the PKIX encoding of PublicKey.
	Fingerprint [32]byte
	FetchedAt   time.Time
	// ExpiresAt is the expiry announced by the source; zero means none.
	ExpiresAt time.Time
	Revoked   bool
}

// KeyName is the DNS owner name of a key: selector._domainkey.domain.
func KeyName(domain, selector string) string {
	return selector + "._domainkey." + strings.ToLower(domain)
}

// NewKeyRecord builds a record for pub and computes its fingerprint.
func NewKeyRecord(domain, selector string, pub crypto.PublicKey) (*KeyRecord, error) {
	var keyType string
	switch pub.(type) {
	case *rsa.PublicKey:
		keyType = "rsa"
	case ed25519.PublicKey:
		keyType = "ed25519"
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}

	fp, err := cryptox.KeyFingerprint(pub)
	if err != nil {
		return nil, err
	}

	return &KeyRecord{
		Domain:      strings.ToLower(domain),
		Selector:    selector,
		KeyType:     keyType,
		PublicKey:   pub,
		Fingerprint: fp,
	}, nil
}

// UsableAt reports whether the key may verify signatures at t.
func (r *KeyRecord) UsableAt(t time.Time) bool {
	if r.Revoked || r.PublicKey == nil {
		return false
	}
	return r.ExpiresAt.IsZero() || t.Before(r.ExpiresAt)
}

// PublicKeyDER returns the PKIX encoding of the key.
func (r *KeyRecord) PublicKeyDER() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(r.PublicKey)
}

func (r *KeyRecord) clone() *KeyRecord {
	c := *r
	return &c
}

// ParsePublicKey decodes key material as published in a p= tag. RSA keys
// are PKIX (PKCS#1 is accepted as well), ed25519 keys are the raw 32 bytes.
func ParsePublicKey(keyType string, data []byte) (crypto.PublicKey, error) {
	switch keyType {
	case "", "rsa":
		if pub, err := x509.ParsePKIXPublicKey(data); err == nil {
			rsaPub, ok := pub.(*rsa.PublicKey)
			if !ok {
				return nil, fmt.Errorf("k=rsa but key is %T", pub)
			}
			return rsaPub, nil
		}
		pub, err := x509.ParsePKCS1PublicKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse rsa key: %w", err)
		}
		return pub, nil
	case "ed25519":
		if len(data) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("ed25519 key must be %d bytes, got %d", ed25519.PublicKeySize, len(data))
		}
		return ed25519.PublicKey(data), nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}

// ParseTXT parses a DKIM key record ("v=DKIM1; k=rsa; p=...").
// An empty p= yields a revoked record.
func ParseTXT(domain, selector, txt string) (*KeyRecord, error) {
	tags := map[string]string{}
	for _, part := range strings.Split(txt, ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		tags[strings.TrimSpace(name)] = strings.Join(strings.Fields(value), "")
	}

	if v, ok := tags["v"]; ok && v != "DKIM1" {
		return nil, fmt.Errorf("unsupported key record version %q", v)
	}
	p, ok := tags["p"]
	if !ok {
		return nil, fmt.Errorf("key record without p= tag")
	}

	keyType := tags["k"]
	if keyType == "" {
		keyType = "rsa"
	}

	if p == "" {
		return &KeyRecord{Domain: strings.ToLower(domain), Selector: selector, KeyType: keyType, Revoked: true}, nil
	}

	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("decode p=: %w", err)
	}
	pub, err := ParsePublicKey(keyType, data)
	if err != nil {
		return nil, err
	}
	return NewKeyRecord(domain, selector, pub)
}

// FormatTXT renders pub as a DNS key record.
func FormatTXT(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(k)
		if err != nil {
			return "", err
		}
		return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der), nil
	case ed25519.PublicKey:
		return "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(k), nil
	default:
		return "", fmt.Errorf("unsupported public key type %T", pub)
	}
}
