package gitcli

import "sync"

// maxStderrBytes caps how much of a failing command's stderr is retained.
const maxStderrBytes = 4 * 1024

// stderrTail keeps the last maxStderrBytes written to it.
type stderrTail struct {
	buf []byte
	mu  sync.Mutex
}

// Write implements io.Writer.
func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, p...)
	if over := len(s.buf) - maxStderrBytes; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}

	return len(p), nil
}

// String returns the retained tail.
func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return string(s.buf)
}
