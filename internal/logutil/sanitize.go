// Package logutil holds helpers for writing untrusted text to the log.
package logutil

import (
	"strings"
	"unicode"
)

// maxLogField bounds a single user-supplied value in a log line.
const maxLogField = 200

// SanitizeForLog flattens user- or remote-supplied text onto one line so it
// cannot forge extra log entries. Whitespace controls become spaces, other
// control characters are dropped, and the result is cut at maxLogField runes.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == maxLogField {
			b.WriteString("...")
			break
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return b.String()
}
