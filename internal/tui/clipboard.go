package tui

import (
	"io"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
)

// OSC52Clipboard copies text through the terminal emulator with the OSC 52
// escape sequence. It works over SSH and inside tmux or screen.
type OSC52Clipboard struct {
	Out io.Writer
	// Term is the value of $TERM; it selects the tmux or screen wrapping.
	Term string
	// InTmux is set when $TMUX is present.
	InTmux bool
}

// NewClipboard returns a clipboard writing to the controlling terminal, or
// to stderr when there is none.
func NewClipboard() *OSC52Clipboard {
	var out io.Writer = os.Stderr
	if tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0); err == nil {
		out = tty
	}
	return &OSC52Clipboard{
		Out:    out,
		Term:   os.Getenv("TERM"),
		InTmux: os.Getenv("TMUX") != "",
	}
}

// Copy implements simterm.Clipboard.
func (c *OSC52Clipboard) Copy(text string) error {
	seq := osc52.New(text)
	switch {
	case c.InTmux || strings.HasPrefix(c.Term, "tmux"):
		seq = seq.Tmux()
	case strings.HasPrefix(c.Term, "screen"):
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.Out)
	return err
}
