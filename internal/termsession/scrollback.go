package termsession

import "sync"

// Scrollback is an ordered, append-only log of display lines. It is written
// by a single owner and may be read concurrently by the presentation layer.
// It never truncates; trimming for display is up to the reader.
type Scrollback struct {
	mu     sync.RWMutex
	lines  []string
	notify chan struct{} // signaled (non-blocking) on every change
}

// NewScrollback creates an empty scrollback.
func NewScrollback() *Scrollback {
	return &Scrollback{notify: make(chan struct{}, 1)}
}

// Append adds lines to the end of the log.
func (s *Scrollback) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	s.lines = append(s.lines, lines...)
	s.mu.Unlock()
	s.signal()
}

// AppendLine adds one line and returns its index.
func (s *Scrollback) AppendLine(line string) int {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	i := len(s.lines) - 1
	s.mu.Unlock()
	s.signal()
	return i
}

// RemoveAt removes line i if it still reads want, and reports whether it did.
func (s *Scrollback) RemoveAt(i int, want string) bool {
	s.mu.Lock()
	if i < 0 || i >= len(s.lines) || s.lines[i] != want {
		s.mu.Unlock()
		return false
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.mu.Unlock()
	s.signal()
	return true
}

// DropLast removes the final line and reports whether one was removed.
func (s *Scrollback) DropLast() bool {
	s.mu.Lock()
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return false
	}
	s.lines = s.lines[:len(s.lines)-1]
	s.mu.Unlock()
	s.signal()
	return true
}

// Last returns the final line, or false if the log is empty.
func (s *Scrollback) Last() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lines) == 0 {
		return "", false
	}
	return s.lines[len(s.lines)-1], true
}

// Reset replaces the whole log with the given lines.
func (s *Scrollback) Reset(lines ...string) {
	s.mu.Lock()
	s.lines = append([]string(nil), lines...)
	s.mu.Unlock()
	s.signal()
}

// Lines returns a copy of the current log.
func (s *Scrollback) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, len(s.lines))
	copy(result, s.lines)
	return result
}

// Len returns the number of lines.
func (s *Scrollback) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Notify returns the channel that is signaled when the log changes.
// Readers should select on it and then call Lines.
func (s *Scrollback) Notify() <-chan struct{} {
	return s.notify
}

func (s *Scrollback) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
