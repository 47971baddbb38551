package gitcli

import (
	"iter"
	"strings"
)

// cEscapes maps the single-letter escapes git emits in quoted paths.
var cEscapes = map[byte]byte{
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
	'"': '"', '\\': '\\',
}

// UnquotePath decodes a path git printed in C-quoted form. core.quotepath=off
// keeps non-ASCII bytes verbatim, but names holding a double quote, a
// backslash or a control byte are still wrapped in quotes and escaped.
// Lines that are not quoted, or not well formed, are returned unchanged.
func UnquotePath(line string) string {
	if len(line) < 2 || line[0] != '"' || line[len(line)-1] != '"' {
		return line
	}

	body := line[1 : len(line)-1]

	var b strings.Builder

	b.Grow(len(body))

	for i := 0; i < len(body); i++ {
		c := body[i]

		switch {
		case c == '"':
			return line
		case c != '\\':
			b.WriteByte(c)

			continue
		}

		i++
		if i >= len(body) {
			return line
		}

		if esc, ok := cEscapes[body[i]]; ok {
			b.WriteByte(esc)

			continue
		}

		if i+2 >= len(body) || !isOctal(body[i]) || !isOctal(body[i+1]) || !isOctal(body[i+2]) {
			return line
		}

		b.WriteByte((body[i]-'0')<<6 | (body[i+1]-'0')<<3 | (body[i+2] - '0'))
		i += 2
	}

	return b.String()
}

// UnquotePaths applies UnquotePath to every line of seq. Empty lines and
// errors pass through.
func UnquotePaths(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range seq {
			if err != nil {
				yield("", err)

				return
			}

			if !yield(UnquotePath(line), nil) {
				return
			}
		}
	}
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
