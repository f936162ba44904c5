package cryptox

import (
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the Ethereum-flavoured keccak hash of the concatenated input.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// KeyFingerprint is the SHA-256 digest of a public key's PKIX DER encoding.
func KeyFingerprint(pub any) ([32]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return [32]byte{}, fmt.Errorf("fingerprint: %w", err)
	}
	return sha256.Sum256(der), nil
}
