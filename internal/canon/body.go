package canon

import "bytes"

// canonicalizeBody applies the body algorithm to a CRLF-normalized body.
func canonicalizeBody(body []byte, alg Algorithm) []byte {
	if alg == Relaxed {
		return relaxedBody(body)
	}
	return simpleBody(body)
}

// simpleBody strips trailing empty lines and terminates the body with exactly
// one CRLF; an empty body becomes a single CRLF.
func simpleBody(body []byte) []byte {
	trimmed := body
	for bytes.HasSuffix(trimmed, crlf) {
		trimmed = trimmed[:len(trimmed)-2]
	}
	out := make([]byte, 0, len(trimmed)+2)
	out = append(out, trimmed...)
	return append(out, crlf...)
}

// relaxedBody collapses whitespace runs within lines, removes whitespace at
// line ends and strips trailing empty lines. An empty result stays empty.
func relaxedBody(body []byte) []byte {
	lines := bytes.Split(body, crlf)
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		out = append(out, relaxLine(line))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}

	var b bytes.Buffer
	for _, line := range out {
		b.Write(line)
		b.Write(crlf)
	}
	return b.Bytes()
}

func relaxLine(line []byte) []byte {
	out := make([]byte, 0, len(line))
	pendingSpace := false
	for _, c := range line {
		if isWSP(c) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			out = append(out, ' ')
		}
		pendingSpace = false
		out = append(out, c)
	}
	return out
}
