// Package command matches the signed subject (or body) of an email against
// a command template and ABI-encodes the placeholder values.
package command

import (
	"bytes"
	"math/big"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
)

// Encoded is a command that matched its template.
type Encoded struct {
	TemplateID *big.Int
	Params     []Param
	// SkippedPrefix is the byte offset of the first placeholder within the
	// canonical source value, or the command length without placeholders.
	SkippedPrefix int
	Command       []byte
	// Range locates Command in Email.Header (subject) or Email.Body (body).
	Range  canon.Range
	Source Source

	paramsABI []byte
	hash      [32]byte
}

// ParamsABI returns abi.encode(bytes[]) of the encoded params.
func (e *Encoded) ParamsABI() []byte { return bytes.Clone(e.paramsABI) }

// Hash returns keccak256(ParamsABI()).
func (e *Encoded) Hash() [32]byte { return e.hash }

type word struct {
	text       string
	start, end int
}

func tokenize(src []byte) []word {
	var words []word
	start := -1
	for i := 0; i <= len(src); i++ {
		ws := i == len(src) || src[i] == ' ' || src[i] == '\t' || src[i] == '\r' || src[i] == '\n'
		switch {
		case ws && start >= 0:
			words = append(words, word{text: string(src[start:i]), start: start, end: i})
			start = -1
		case !ws && start < 0:
			start = i
		}
	}
	return words
}

// Encode matches the command source of e against t token by token.
func Encode(e *canon.Email, t *Template) (*Encoded, error) {
	tid := t.ID.String()

	src, base, ok := commandSource(e, t.Source)
	if !ok {
		return nil, &Error{Kind: SourceMissing, Template: tid, Reason: "no " + t.Source.String() + " command"}
	}
	words := tokenize(src)

	n := len(words)
	if len(t.Tokens) > n {
		n = len(t.Tokens)
	}

	out := &Encoded{TemplateID: new(big.Int).Set(t.ID), Source: t.Source, SkippedPrefix: -1}
	for i := 0; i < n; i++ {
		if i >= len(t.Tokens) {
			return nil, &Error{Kind: TemplateMismatch, Template: tid, Position: i, Expected: EndOfInput, Found: words[i].text}
		}
		tok := t.Tokens[i]
		if i >= len(words) {
			return nil, &Error{Kind: TemplateMismatch, Template: tid, Position: i, Expected: tok.String(), Found: EndOfInput}
		}
		w := words[i]

		if !tok.IsPlaceholder() {
			if w.text != tok.Literal {
				return nil, &Error{Kind: TemplateMismatch, Template: tid, Position: i, Expected: tok.Literal, Found: w.text}
			}
			continue
		}

		p, err := encodeParam(tok.Type, w.text)
		if err != nil {
			return nil, &Error{Kind: ParameterTypeError, Template: tid, Position: i, Expected: tok.String(), Found: w.text, Reason: err.Error()}
		}
		if out.SkippedPrefix < 0 {
			out.SkippedPrefix = w.start
		}
		out.Params = append(out.Params, p)
	}

	first, last := words[0], words[len(words)-1]
	if out.SkippedPrefix < 0 {
		out.SkippedPrefix = last.end
	}
	out.Command = bytes.Clone(src[first.start:last.end])
	out.Range = canon.Range{Start: base + first.start, End: base + last.end}

	raw := make([][]byte, len(out.Params))
	for i, p := range out.Params {
		raw[i] = p.ABI
	}
	packed, err := PackParams(raw)
	if err != nil {
		return nil, err
	}
	out.paramsABI = packed
	out.hash = cryptox.Keccak256(packed)

	return out, nil
}

// commandSource returns the canonical source value and its offset in the
// header block or body.
func commandSource(e *canon.Email, s Source) ([]byte, int, bool) {
	if s == FromBody {
		off := 0
		for _, line := range bytes.Split(e.Body, []byte("\r\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				return line, off, true
			}
			off += len(line) + 2
		}
		return nil, 0, false
	}

	if !e.HasSubject {
		return nil, 0, false
	}
	v := e.SubjectValue()
	if len(bytes.TrimSpace(v)) == 0 {
		return nil, 0, false
	}
	return v, e.Subject.Start, true
}
