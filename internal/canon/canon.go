// Package canon turns raw RFC 5322 messages into the canonical form that a
// DKIM signature is computed over (RFC 6376 section 3.4).
package canon

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
)

// RawEmail is an unmodified message as received.
type RawEmail []byte

// Algorithm is a DKIM canonicalization algorithm name.
type Algorithm string

const (
	Simple  Algorithm = "simple"
	Relaxed Algorithm = "relaxed"
)

func parseAlgorithm(s string) (Algorithm, bool) {
	switch Algorithm(s) {
	case Simple:
		return Simple, true
	case Relaxed:
		return Relaxed, true
	}
	return "", false
}

// Policy selects the header and body algorithms. An empty component falls
// back to what the signature declares in its c= tag.
type Policy struct {
	Header Algorithm
	Body   Algorithm
}

// DeclaredPolicy follows the c= tag of the signature.
var DeclaredPolicy = Policy{}

func (p Policy) String() string { return string(p.Header) + "/" + string(p.Body) }

// Range is a half-open byte range.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

// Slice returns b[r.Start:r.End].
func (r Range) Slice(b []byte) []byte { return b[r.Start:r.End] }

// SignedField is a header field included in the signed block with its
// position in Email.Header.
type SignedField struct {
	Name  string
	Range Range
}

// Email is the canonical form of a signed message. It is a pure function of
// the raw bytes and the policy and is never modified after Canonicalize.
type Email struct {
	// Policy holds the algorithms actually applied.
	Policy Policy
	// Fields are all header fields in message order.
	Fields []Field
	// Signature is the parsed DKIM-Signature used for the signed block.
	Signature Signature
	// Header is the signed header block, the exact bytes the signature covers.
	Header       []byte
	SignedFields []SignedField
	// Body is the canonical body, truncated to l= when present.
	Body []byte
	// FullBody is the canonical body before l= truncation.
	FullBody []byte
	// Subject is the range of the signed subject value within Header.
	Subject    Range
	HasSubject bool
}

// SubjectValue returns the canonical subject value, or nil when the subject
// is not signed.
func (e *Email) SubjectValue() []byte {
	if !e.HasSubject {
		return nil
	}
	return e.Subject.Slice(e.Header)
}

// Bytes renders every header field with the applied header algorithm
// followed by the canonical body. Feeding the result back to Canonicalize
// with the same policy yields an equal Email.
func (e *Email) Bytes() []byte {
	var b bytes.Buffer
	for _, f := range e.Fields {
		b.Write(canonicalizeHeader(f, e.Policy.Header))
	}
	b.Write(crlf)
	b.Write(e.FullBody)
	return b.Bytes()
}

// Equal reports whether both emails carry the same canonical content.
// Raw field bytes are not compared.
func (e *Email) Equal(o *Email) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Policy == o.Policy &&
		bytes.Equal(e.Header, o.Header) &&
		bytes.Equal(e.Body, o.Body) &&
		bytes.Equal(e.FullBody, o.FullBody) &&
		slices.Equal(e.SignedFields, o.SignedFields) &&
		e.Subject == o.Subject &&
		e.HasSubject == o.HasSubject &&
		reflect.DeepEqual(e.Signature, o.Signature)
}

// Canonicalize parses raw, locates its DKIM-Signature and builds the signed
// header block and canonical body.
func Canonicalize(raw RawEmail, policy Policy) (*Email, error) {
	msg := normalizeLineEndings(raw)
	header, body := splitMessage(msg)

	fields, err := parseFields(header)
	if err != nil {
		return nil, err
	}

	sigIndex := -1
	for i, f := range fields {
		if f.Key() == SignatureFieldName {
			sigIndex = i
			break
		}
	}
	if sigIndex < 0 {
		return nil, sigError(SignatureFieldName, "no signature field")
	}

	sig, err := parseSignature(fields[sigIndex])
	if err != nil {
		return nil, err
	}

	applied, err := resolvePolicy(policy, sig)
	if err != nil {
		return nil, err
	}

	e := &Email{Policy: applied, Fields: fields, Signature: sig}

	var block bytes.Buffer
	used := make(map[int]bool, len(sig.SignedHeaders))
	for _, name := range sig.SignedHeaders {
		i := lastUnused(fields, name, used, sigIndex)
		if i < 0 {
			continue
		}
		used[i] = true

		chunk := canonicalizeHeader(fields[i], applied.Header)
		start := block.Len()
		block.Write(chunk)
		e.SignedFields = append(e.SignedFields, SignedField{Name: name, Range: Range{start, block.Len()}})

		if name == "subject" && !e.HasSubject {
			e.Subject = subjectRange(chunk, start)
			e.HasSubject = true
		}
	}

	sigChunk := bytes.TrimSuffix(canonicalizeHeader(stripSignatureValue(fields[sigIndex]), applied.Header), crlf)
	start := block.Len()
	block.Write(sigChunk)
	e.SignedFields = append(e.SignedFields, SignedField{Name: SignatureFieldName, Range: Range{start, block.Len()}})
	e.Header = block.Bytes()

	e.FullBody = canonicalizeBody(body, applied.Body)
	e.Body = e.FullBody
	if sig.BodyLength >= 0 {
		if sig.BodyLength > int64(len(e.FullBody)) {
			return nil, sigError("l", "body length exceeds canonical body")
		}
		e.Body = e.FullBody[:sig.BodyLength]
	}

	return e, nil
}

func resolvePolicy(p Policy, sig Signature) (Policy, error) {
	out := Policy{Header: sig.HeaderCanon, Body: sig.BodyCanon}
	if p.Header != "" {
		a, ok := parseAlgorithm(string(p.Header))
		if !ok {
			return Policy{}, fmt.Errorf("canonicalize: unsupported header algorithm %q", p.Header)
		}
		out.Header = a
	}
	if p.Body != "" {
		a, ok := parseAlgorithm(string(p.Body))
		if !ok {
			return Policy{}, fmt.Errorf("canonicalize: unsupported body algorithm %q", p.Body)
		}
		out.Body = a
	}
	return out, nil
}

// lastUnused scans bottom-up for the last instance of name that has not been
// consumed by an earlier h= entry.
func lastUnused(fields []Field, name string, used map[int]bool, skip int) int {
	for i := len(fields) - 1; i >= 0; i-- {
		if i == skip || used[i] {
			continue
		}
		if fields[i].Key() == name {
			return i
		}
	}
	return -1
}

// subjectRange locates the value inside a canonicalized subject field that
// starts at offset within the header block.
func subjectRange(chunk []byte, offset int) Range {
	s := bytes.IndexByte(chunk, ':') + 1
	for s < len(chunk) && (isWSP(chunk[s]) || chunk[s] == '\r' || chunk[s] == '\n') {
		s++
	}
	e := len(chunk) - len(crlf)
	if e < s {
		e = s
	}
	return Range{Start: offset + s, End: offset + e}
}
