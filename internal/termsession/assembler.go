package termsession

import (
	"sync"
	"time"

	"github.com/gluk-w/claworc/console/internal/termproto"
)

// Update describes the effect of one frame on the assembler.
type Update struct {
	// Appended is the number of scrollback lines added.
	Appended int
	// Connected is set when the frame completed the handshake.
	Connected bool
	// Ignored is set for frames with no effect (unknown or client-bound tags).
	Ignored bool
}

// Assembler converts an ordered stream of frames into scrollback lines and
// tracks liveness metrics. It is safe for concurrent readers; frames must be
// applied by a single goroutine in arrival order.
type Assembler struct {
	target     termproto.Target
	mode       Mode
	scrollback *Scrollback
	now        func() time.Time

	mu             sync.Mutex
	bytesReceived  int64
	lastActivityAt time.Time
	lastPongAt     time.Time
	placeholder    string // non-empty while the connecting line is installed
	placeholderAt  int
}

// NewAssembler creates an assembler writing into sb. If now is nil,
// time.Now is used.
func NewAssembler(sb *Scrollback, target termproto.Target, mode Mode, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		target:     target,
		mode:       mode,
		scrollback: sb,
		now:        now,
	}
}

// Scrollback returns the buffer the assembler writes into.
func (a *Assembler) Scrollback() *Scrollback {
	return a.scrollback
}

// ShowPlaceholder installs the connecting line.
func (a *Assembler) ShowPlaceholder() {
	line := Placeholder(a.target)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placeholder = line
	a.placeholderAt = a.scrollback.AppendLine(line)
}

// Apply processes one inbound frame.
func (a *Assembler) Apply(f termproto.Frame) Update {
	switch f.Type {
	case termproto.FrameLineOutput, termproto.FrameOutput:
		a.mu.Lock()
		a.bytesReceived += int64(len(f.Data))
		a.lastActivityAt = a.now()
		a.mu.Unlock()
		a.scrollback.Append(f.Data)
		return Update{Appended: 1}

	case termproto.FrameCommandEcho:
		a.scrollback.Append(f.Data)
		return Update{Appended: 1}

	case termproto.FrameError:
		a.scrollback.Append("Error: "+f.Message, "")
		return Update{Appended: 2}

	case termproto.FramePong:
		a.mu.Lock()
		a.lastPongAt = a.now()
		a.mu.Unlock()
		return Update{}

	case termproto.FrameConnected:
		a.dropPlaceholder()
		banner := Banner(a.target, a.mode)
		a.scrollback.Append(banner...)
		return Update{Appended: len(banner), Connected: true}

	default:
		return Update{Ignored: true}
	}
}

// Notice appends locally generated lines. Metrics are not touched.
func (a *Assembler) Notice(lines ...string) {
	a.scrollback.Append(lines...)
}

// Resolve replaces the connecting placeholder, if still installed, with the
// given status lines.
func (a *Assembler) Resolve(lines ...string) {
	a.dropPlaceholder()
	a.scrollback.Append(lines...)
}

// Reset clears the scrollback to a fresh banner.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.placeholder = ""
	a.mu.Unlock()
	a.scrollback.Reset(Banner(a.target, a.mode)...)
}

// BytesReceived returns the total length of all data frames seen.
func (a *Assembler) BytesReceived() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytesReceived
}

// LastActivityAt returns the arrival time of the latest data frame.
func (a *Assembler) LastActivityAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivityAt
}

// LastPongAt returns the arrival time of the latest pong frame.
func (a *Assembler) LastPongAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPongAt
}

// dropPlaceholder removes the connecting line wherever it sits; notices may
// have been appended after it.
func (a *Assembler) dropPlaceholder() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.placeholder == "" {
		return
	}
	a.scrollback.RemoveAt(a.placeholderAt, a.placeholder)
	a.placeholder = ""
}
