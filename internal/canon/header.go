package canon

import (
	"bytes"
	"strings"
)

// Field is one header field exactly as it appears in the message, line
// endings normalized, continuation lines and trailing CRLF included.
type Field struct {
	Name string
	Raw  []byte
}

// Key returns the lowercase field name.
func (f Field) Key() string { return strings.ToLower(f.Name) }

// Value returns the bytes after the colon without the trailing CRLF.
func (f Field) Value() []byte {
	v := f.Raw[bytes.IndexByte(f.Raw, ':')+1:]
	return bytes.TrimSuffix(v, crlf)
}

var crlf = []byte("\r\n")

func isWSP(c byte) bool { return c == ' ' || c == '\t' }

// normalizeLineEndings turns every bare LF into CRLF.
func normalizeLineEndings(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+bytes.Count(raw, []byte("\n")))
	for i, c := range raw {
		if c == '\n' && (i == 0 || raw[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}

// splitMessage separates the header section from the body at the first
// empty line. The returned header section keeps the CRLF of its last field.
func splitMessage(msg []byte) (header, body []byte) {
	if bytes.HasPrefix(msg, crlf) {
		return nil, msg[2:]
	}
	if i := bytes.Index(msg, []byte("\r\n\r\n")); i >= 0 {
		return msg[:i+2], msg[i+4:]
	}
	return msg, nil
}

// parseFields splits a header section into fields.
func parseFields(header []byte) ([]Field, error) {
	var fields []Field

	for len(header) > 0 {
		if isWSP(header[0]) {
			return nil, &Error{Kind: MalformedHeader, Reason: "continuation line without a field"}
		}

		end := 0
		for {
			i := bytes.Index(header[end:], crlf)
			if i < 0 {
				end = len(header)
				break
			}
			end += i + 2
			if end >= len(header) || !isWSP(header[end]) {
				break
			}
		}

		raw := header[:end]
		header = header[end:]

		colon := bytes.IndexByte(raw, ':')
		if colon <= 0 {
			return nil, &Error{Kind: MalformedHeader, Field: string(bytes.TrimSpace(raw)), Reason: "field without a name"}
		}
		name := strings.TrimRight(string(raw[:colon]), " \t")
		if name == "" || strings.ContainsAny(name, " \t\r\n") {
			return nil, &Error{Kind: MalformedHeader, Field: name, Reason: "invalid field name"}
		}
		if !bytes.HasSuffix(raw, crlf) {
			raw = append(append([]byte{}, raw...), crlf...)
		}
		fields = append(fields, Field{Name: name, Raw: raw})
	}

	return fields, nil
}

// canonicalizeHeader renders one field with the given algorithm. The result
// always ends with CRLF.
func canonicalizeHeader(f Field, alg Algorithm) []byte {
	if alg == Simple {
		return append([]byte{}, f.Raw...)
	}

	var b bytes.Buffer
	b.WriteString(strings.ToLower(f.Name))
	b.WriteByte(':')
	b.Write(relaxValue(f.Value()))
	b.Write(crlf)
	return b.Bytes()
}

// relaxValue unfolds a header value, collapses whitespace runs into one SP
// and trims whitespace at both ends.
func relaxValue(v []byte) []byte {
	out := make([]byte, 0, len(v))
	pendingSpace := false
	for _, c := range v {
		if c == '\r' || c == '\n' {
			continue
		}
		if isWSP(c) {
			pendingSpace = true
			continue
		}
		if pendingSpace && len(out) > 0 {
			out = append(out, ' ')
		}
		pendingSpace = false
		out = append(out, c)
	}
	return out
}
