package canon

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
)

// SignatureFieldName is the header field carrying the domain signature.
const SignatureFieldName = "dkim-signature"

// Signature is the parsed DKIM-Signature tag list.
type Signature struct {
	Version       string
	Algorithm     string // a=, e.g. rsa-sha256
	Domain        string // d=
	Selector      string // s=
	Identity      string // i=
	Query         string // q=
	BodyHash      []byte // bh=, decoded
	Signature     []byte // b=, decoded
	SignedHeaders []string
	HeaderCanon   Algorithm
	BodyCanon     Algorithm
	BodyLength    int64 // l=, -1 when absent
	Timestamp     int64 // t=, 0 when absent
	Expiration    int64 // x=, 0 when absent
}

// KeyAlgorithm returns the part of a= before the dash ("rsa", "ed25519").
func (s Signature) KeyAlgorithm() string {
	k, _, _ := strings.Cut(s.Algorithm, "-")
	return k
}

// HashAlgorithm returns the part of a= after the dash ("sha256").
func (s Signature) HashAlgorithm() string {
	_, h, _ := strings.Cut(s.Algorithm, "-")
	return h
}

type tag struct {
	name  string
	value string
}

// parseTagList parses "name=value; name=value" with folding whitespace
// allowed around names, values and separators. Duplicate names are rejected.
func parseTagList(v []byte) ([]tag, error) {
	var tags []tag
	seen := map[string]bool{}

	for _, part := range strings.Split(string(v), ";") {
		part = strings.TrimSpace(strings.NewReplacer("\r\n", "", "\t", " ").Replace(part))
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, sigError(part, "tag without '='")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, sigError("", "empty tag name")
		}
		if seen[name] {
			return nil, sigError(name, "duplicate tag")
		}
		seen[name] = true
		tags = append(tags, tag{name: name, value: strings.TrimSpace(value)})
	}

	return tags, nil
}

func parseSignature(f Field) (Signature, error) {
	tags, err := parseTagList(f.Value())
	if err != nil {
		return Signature{}, err
	}

	sig := Signature{BodyLength: -1, HeaderCanon: Simple, BodyCanon: Simple}
	got := map[string]bool{}

	for _, t := range tags {
		got[t.name] = true
		switch t.name {
		case "v":
			sig.Version = t.value
		case "a":
			sig.Algorithm = strings.ToLower(t.value)
		case "d":
			sig.Domain = strings.ToLower(t.value)
		case "s":
			sig.Selector = t.value
		case "i":
			sig.Identity = t.value
		case "q":
			sig.Query = t.value
		case "bh":
			if sig.BodyHash, err = decodeBase64(t.value); err != nil {
				return Signature{}, sigError("bh", "invalid base64")
			}
		case "b":
			if sig.Signature, err = decodeBase64(t.value); err != nil {
				return Signature{}, sigError("b", "invalid base64")
			}
		case "h":
			for _, h := range strings.Split(t.value, ":") {
				if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
					sig.SignedHeaders = append(sig.SignedHeaders, h)
				}
			}
		case "c":
			if sig.HeaderCanon, sig.BodyCanon, err = parseCanonTag(t.value); err != nil {
				return Signature{}, err
			}
		case "l":
			if sig.BodyLength, err = strconv.ParseInt(t.value, 10, 64); err != nil || sig.BodyLength < 0 {
				return Signature{}, sigError("l", "invalid body length")
			}
		case "t":
			if sig.Timestamp, err = strconv.ParseInt(t.value, 10, 64); err != nil {
				return Signature{}, sigError("t", "invalid timestamp")
			}
		case "x":
			if sig.Expiration, err = strconv.ParseInt(t.value, 10, 64); err != nil {
				return Signature{}, sigError("x", "invalid expiration")
			}
		}
	}

	for _, required := range []string{"v", "a", "b", "bh", "d", "h", "s"} {
		if !got[required] {
			return Signature{}, sigError(required, "required tag missing")
		}
	}
	if sig.Version != "1" {
		return Signature{}, sigError("v", "unsupported version")
	}
	if !strings.Contains(sig.Algorithm, "-") {
		return Signature{}, sigError("a", "malformed algorithm")
	}
	if sig.Domain == "" || sig.Selector == "" {
		return Signature{}, sigError("d", "empty domain or selector")
	}
	if len(sig.Signature) == 0 {
		return Signature{}, sigError("b", "empty signature")
	}
	if len(sig.BodyHash) == 0 {
		return Signature{}, sigError("bh", "empty body hash")
	}
	if !contains(sig.SignedHeaders, "from") {
		return Signature{}, sigError("h", "from is not signed")
	}

	return sig, nil
}

func parseCanonTag(v string) (Algorithm, Algorithm, error) {
	h, b, _ := strings.Cut(strings.ToLower(v), "/")
	header, ok := parseAlgorithm(h)
	if !ok {
		return "", "", sigError("c", "unsupported header canonicalization")
	}
	if b == "" {
		return header, Simple, nil
	}
	body, ok := parseAlgorithm(b)
	if !ok {
		return "", "", sigError("c", "unsupported body canonicalization")
	}
	return header, body, nil
}

func decodeBase64(v string) ([]byte, error) {
	v = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, v)
	return base64.StdEncoding.DecodeString(v)
}

// stripSignatureValue returns a copy of the field with the value of its b=
// tag deleted, surrounding whitespace included.
func stripSignatureValue(f Field) Field {
	raw := bytes.TrimSuffix(f.Raw, crlf)
	colon := bytes.IndexByte(raw, ':')

	out := append([]byte{}, raw[:colon+1]...)
	rest := raw[colon+1:]

	for len(rest) > 0 {
		end := bytes.IndexByte(rest, ';')
		segment := rest
		if end >= 0 {
			segment = rest[:end+1]
		}
		rest = rest[len(segment):]

		eq := bytes.IndexByte(segment, '=')
		if eq >= 0 && string(bytes.TrimSpace(bytes.ReplaceAll(segment[:eq], crlf, nil))) == "b" {
			out = append(out, segment[:eq+1]...)
			if bytes.HasSuffix(segment, []byte(";")) {
				out = append(out, ';')
			}
			continue
		}
		out = append(out, segment...)
	}

	return Field{Name: f.Name, Raw: append(out, crlf...)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
