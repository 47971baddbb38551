// Package linestream decodes a byte stream into a lazy sequence of text lines.
package linestream

import (
	"bufio"
	"errors"
	"io"
	"iter"
)

// readBufferSize is the initial read buffer. Lines longer than this are
// accumulated across reads, so it bounds nothing but syscall granularity.
const readBufferSize = 32 * 1024 // 32KB read buffer.

// Lines returns a single-pass sequence of the lines in r, split on '\n'.
// The newline is not included. A final fragment without a trailing newline
// is yielded when non-empty. A read error is yielded once with an empty
// line and ends the sequence.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		br := bufio.NewReaderSize(r, readBufferSize)

		for {
			line, err := readLine(br)
			if err != nil {
				if errors.Is(err, io.EOF) {
					if line != "" {
						yield(line, nil)
					}

					return
				}

				yield("", err)

				return
			}

			if !yield(line, nil) {
				return
			}
		}
	}
}

// readLine reads up to and excluding the next '\n'. The returned error is
// io.EOF when the stream ended before a newline; the partial line is
// returned alongside it.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte

	for {
		chunk, err := br.ReadSlice('\n')

		switch {
		case err == nil:
			if buf == nil {
				return string(chunk[:len(chunk)-1]), nil
			}

			buf = append(buf, chunk[:len(chunk)-1]...)

			return string(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			buf = append(buf, chunk...)
		default:
			buf = append(buf, chunk...)

			return string(buf), err
		}
	}
}

// Collect drains a line sequence into a slice. It stops at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var lines []string

	for line, err := range seq {
		if err != nil {
			return lines, err
		}

		lines = append(lines, line)
	}

	return lines, nil
}
