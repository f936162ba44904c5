package cryptox

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256_KnownVector(t *testing.T) {
	// keccak256("") from the Ethereum yellow paper.
	got := Keccak256()
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(got[:]))

	assert.Equal(t, Keccak256([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
}

func TestKeyFingerprint(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	a, err := KeyFingerprint(pub)
	require.NoError(t, err)
	b, err := KeyFingerprint(pub)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = KeyFingerprint("not a key")
	require.Error(t, err)
}
