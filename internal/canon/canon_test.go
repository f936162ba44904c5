package canon

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSig = "DKIM-Signature: v=1; a=rsa-sha256; c=relaxed/relaxed; d=example.com; s=sel;\r\n" +
	"\th=from:subject:to:subject; bh=AAAA; b=AA\r\n AA\r\n"

const sample = sampleSig +
	"From: Alice <alice@example.com>\r\n" +
	"To:  bob@example.org\r\n" +
	"Subject:   signHash   0x01\r\n" +
	"\r\n" +
	"Hello  world \r\n\r\n\r\n"

func mustCanon(t *testing.T, raw string, p Policy) *Email {
	t.Helper()
	e, err := Canonicalize(RawEmail(raw), p)
	require.NoError(t, err)
	return e
}

func TestCanonicalize_RelaxedDeclared(t *testing.T) {
	e := mustCanon(t, sample, DeclaredPolicy)

	assert.Equal(t, Policy{Header: Relaxed, Body: Relaxed}, e.Policy)

	want := "from:Alice <alice@example.com>\r\n" +
		"subject:signHash 0x01\r\n" +
		"to:bob@example.org\r\n" +
		"dkim-signature:v=1; a=rsa-sha256; c=relaxed/relaxed; d=example.com; s=sel; h=from:subject:to:subject; bh=AAAA; b="
	assert.Equal(t, want, string(e.Header))
	assert.Equal(t, "Hello world\r\n", string(e.Body))
	assert.Equal(t, "signHash 0x01", string(e.SubjectValue()))

	require.Len(t, e.SignedFields, 4)
	assert.Equal(t, "from", e.SignedFields[0].Name)
	assert.Equal(t, "subject", e.SignedFields[1].Name)
	assert.Equal(t, "to", e.SignedFields[2].Name)
	assert.Equal(t, SignatureFieldName, e.SignedFields[3].Name)
	assert.Equal(t, len(e.Header), e.SignedFields[3].Range.End)

	assert.Equal(t, "example.com", e.Signature.Domain)
	assert.Equal(t, "sel", e.Signature.Selector)
	assert.Equal(t, "rsa", e.Signature.KeyAlgorithm())
	assert.Equal(t, "sha256", e.Signature.HashAlgorithm())
	assert.Equal(t, []byte{0, 0, 0}, e.Signature.Signature)
	assert.Equal(t, int64(-1), e.Signature.BodyLength)
}

func TestCanonicalize_PolicyOverridesDeclared(t *testing.T) {
	e := mustCanon(t, sample, Policy{Header: Simple, Body: Simple})

	assert.True(t, strings.HasPrefix(string(e.Header), "From: Alice <alice@example.com>\r\nSubject:   signHash   0x01\r\nTo:  bob@example.org\r\n"))
	assert.True(t, strings.HasSuffix(string(e.Header), "bh=AAAA; b="))
	assert.Equal(t, "Hello  world \r\n", string(e.Body))
	assert.Equal(t, "signHash   0x01", string(e.SubjectValue()))
}

func TestCanonicalize_PartialPolicy(t *testing.T) {
	e := mustCanon(t, sample, Policy{Body: Simple})
	assert.Equal(t, Policy{Header: Relaxed, Body: Simple}, e.Policy)
}

func TestCanonicalize_DefaultIsSimple(t *testing.T) {
	raw := "DKIM-Signature: v=1; a=rsa-sha256; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA\r\n" +
		"From: a@example.com\r\n\r\n"
	e := mustCanon(t, raw, DeclaredPolicy)

	assert.Equal(t, Policy{Header: Simple, Body: Simple}, e.Policy)
	assert.Equal(t, "\r\n", string(e.Body))
	assert.False(t, e.HasSubject)
	assert.Nil(t, e.SubjectValue())
}

func TestCanonicalize_EmptyRelaxedBody(t *testing.T) {
	raw := "DKIM-Signature: v=1; a=rsa-sha256; c=relaxed/relaxed; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA\r\n" +
		"From: a@example.com\r\n"
	e := mustCanon(t, raw, DeclaredPolicy)
	assert.Empty(t, e.Body)
}

func TestCanonicalize_BottomUpSelection(t *testing.T) {
	raw := "DKIM-Signature: v=1; a=rsa-sha256; c=relaxed; d=example.com; s=sel; h=from:subject:subject:subject; bh=AAAA; b=AAAA\r\n" +
		"Subject: first\r\n" +
		"From: a@example.com\r\n" +
		"Subject: second\r\n" +
		"\r\nbody\r\n"
	e := mustCanon(t, raw, DeclaredPolicy)

	assert.True(t, strings.HasPrefix(string(e.Header), "from:a@example.com\r\nsubject:second\r\nsubject:first\r\ndkim-signature:"))
	assert.Equal(t, "second", string(e.SubjectValue()))
	// the third "subject" has no instance left and contributes nothing
	assert.Len(t, e.SignedFields, 4)
	assert.Equal(t, Simple, e.Policy.Body)
}

func TestCanonicalize_LFInputMatchesCRLF(t *testing.T) {
	crlfEmail := mustCanon(t, sample, DeclaredPolicy)
	lfEmail := mustCanon(t, strings.ReplaceAll(sample, "\r\n", "\n"), DeclaredPolicy)
	assert.True(t, crlfEmail.Equal(lfEmail))
}

func TestCanonicalize_DeterministicAndIdempotent(t *testing.T) {
	policies := []Policy{
		DeclaredPolicy,
		{Header: Simple, Body: Simple},
		{Header: Relaxed, Body: Simple},
		{Header: Simple, Body: Relaxed},
	}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			a := mustCanon(t, sample, p)
			b := mustCanon(t, sample, p)
			assert.True(t, a.Equal(b))

			again := mustCanon(t, string(a.Bytes()), p)
			assert.True(t, a.Equal(again), "header:\n%q\n%q", a.Header, again.Header)
			assert.Equal(t, a.Bytes(), again.Bytes())
		})
	}
}

func TestCanonicalize_BodyLength(t *testing.T) {
	raw := strings.Replace(sample, "s=sel;", "s=sel; l=5;", 1)
	e := mustCanon(t, raw, DeclaredPolicy)
	assert.Equal(t, "Hello", string(e.Body))
	assert.Equal(t, "Hello world\r\n", string(e.FullBody))

	_, err := Canonicalize(RawEmail(strings.Replace(sample, "s=sel;", "s=sel; l=500;", 1)), DeclaredPolicy)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "l", ce.Field)
}

func TestCanonicalize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		kind  error
		field string
	}{
		{
			name:  "no signature",
			raw:   "From: a@example.com\r\n\r\nbody\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: SignatureFieldName,
		},
		{
			name:  "missing b",
			raw:   "DKIM-Signature: v=1; a=rsa-sha256; d=example.com; s=sel; h=from; bh=AAAA\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "b",
		},
		{
			name:  "from not signed",
			raw:   "DKIM-Signature: v=1; a=rsa-sha256; d=example.com; s=sel; h=subject; bh=AAAA; b=AAAA\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "h",
		},
		{
			name:  "unknown canonicalization",
			raw:   "DKIM-Signature: v=1; a=rsa-sha256; c=fancy/simple; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "c",
		},
		{
			name:  "duplicate tag",
			raw:   "DKIM-Signature: v=1; v=1; a=rsa-sha256; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "v",
		},
		{
			name:  "bad version",
			raw:   "DKIM-Signature: v=2; a=rsa-sha256; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "v",
		},
		{
			name:  "bad base64",
			raw:   "DKIM-Signature: v=1; a=rsa-sha256; d=example.com; s=sel; h=from; bh=AAAA; b=!!\r\nFrom: a\r\n\r\n",
			kind:  ErrMissingOrMalformedSignature,
			field: "b",
		},
		{
			name: "leading continuation",
			raw:  " folded\r\nFrom: a\r\n\r\n",
			kind: ErrMalformedHeader,
		},
		{
			name: "field without colon",
			raw:  "From a\r\n\r\n",
			kind: ErrMalformedHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Canonicalize(RawEmail(tt.raw), DeclaredPolicy)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			if tt.field != "" {
				assert.Equal(t, tt.field, ce.Field)
			}
		})
	}
}

func TestCanonicalize_UnsupportedPolicy(t *testing.T) {
	_, err := Canonicalize(RawEmail(sample), Policy{Header: "nofws"})
	require.Error(t, err)
}

func TestStripSignatureValue(t *testing.T) {
	f := Field{Name: "DKIM-Signature", Raw: []byte("DKIM-Signature: a=1; b=xyz\r\n  zz; bh=q\r\n")}
	got := stripSignatureValue(f)
	assert.Equal(t, "DKIM-Signature: a=1; b=; bh=q\r\n", string(got.Raw))
}

func TestRelaxedBody(t *testing.T) {
	assert.Equal(t, " a b\r\n\r\nc\r\n", string(relaxedBody([]byte("  a \t b  \r\n\r\nc\r\n\r\n"))))
	assert.Equal(t, "", string(relaxedBody(nil)))
	assert.Equal(t, "x\r\n", string(relaxedBody([]byte("x"))))
}

func TestSimpleBody(t *testing.T) {
	assert.Equal(t, "\r\n", string(simpleBody(nil)))
	assert.Equal(t, "a \r\n", string(simpleBody([]byte("a \r\n\r\n"))))
	assert.Equal(t, "a\r\n", string(simpleBody([]byte("a"))))
}
