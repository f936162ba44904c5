// Package cryptox holds the small cryptographic primitives shared by the
// pipeline: the account salt capability, key fingerprints and keccak hashing.
package cryptox

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SaltSize is the size of an account salt in bytes.
const SaltSize = 32

const redacted = "[redacted]"

// ErrSaltNotSerializable is returned by every encoding hook of AccountSalt.
var ErrSaltNotSerializable = errors.New("account salt is not serializable")

// AccountSalt is the private 256-bit value binding a proof to an account.
//
// It never prints, logs or serializes its value: fmt verbs, slog and the
// encoding interfaces all yield a redaction marker or an error. The only way
// to read the bytes is Reveal, which the witness wire encoder calls.
type AccountSalt struct {
	b [SaltSize]byte
}

// ParseAccountSalt parses a 0x-prefixed (or bare) 64 character hex string.
func ParseAccountSalt(s string) (AccountSalt, error) {
	var salt AccountSalt

	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != SaltSize*2 {
		return salt, fmt.Errorf("account salt: want %d hex characters, got %d", SaltSize*2, len(s))
	}
	if _, err := hex.Decode(salt.b[:], []byte(s)); err != nil {
		return salt, errors.New("account salt: invalid hex")
	}
	return salt, nil
}

// AccountSaltFromBytes copies b into a new salt.
func AccountSaltFromBytes(b []byte) (AccountSalt, error) {
	var salt AccountSalt
	if len(b) != SaltSize {
		return salt, fmt.Errorf("account salt: want %d bytes, got %d", SaltSize, len(b))
	}
	copy(salt.b[:], b)
	return salt, nil
}

// Reveal returns a copy of the salt bytes. Callers must not log or persist it.
func (s AccountSalt) Reveal() [SaltSize]byte { return s.b }

// IsZero reports whether the salt is all zeroes (unset).
func (s AccountSalt) IsZero() bool { return s.b == [SaltSize]byte{} }

// Destroy overwrites the salt in place.
func (s *AccountSalt) Destroy() { Wipe(s.b[:]) }

func (AccountSalt) String() string             { return redacted }
func (AccountSalt) GoString() string           { return redacted }
func (AccountSalt) LogValue() slog.Value       { return slog.StringValue(redacted) }
func (AccountSalt) Format(f fmt.State, _ rune) { _, _ = f.Write([]byte(redacted)) }

func (AccountSalt) MarshalJSON() ([]byte, error)   { return nil, ErrSaltNotSerializable }
func (AccountSalt) MarshalText() ([]byte, error)   { return nil, ErrSaltNotSerializable }
func (AccountSalt) MarshalBinary() ([]byte, error) { return nil, ErrSaltNotSerializable }

// Wipe overwrites b with zeros. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
