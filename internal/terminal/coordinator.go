// Package terminal binds terminal views to remote targets. A Coordinator
// owns one terminal: it routes user input to the simulated interpreter or to
// a live session, and exposes a single scrollback view for the presentation
// layer. A Manager tracks coordinators and allows at most one live
// connection per target.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/logutil"
	"github.com/gluk-w/claworc/console/internal/simterm"
	"github.com/gluk-w/claworc/console/internal/termproto"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

var (
	// ErrClosed is returned for operations on a closed coordinator.
	ErrClosed = errors.New("terminal closed")
	// ErrNoAddress is returned by RequestLive when the target has no address.
	ErrNoAddress = errors.New("target has no address")
	// ErrLiveUnavailable is returned by RequestLive when no bridge is configured.
	ErrLiveUnavailable = errors.New("live mode not configured")
	// ErrTargetBusy is returned by RequestLive when another terminal holds the
	// target's live connection.
	ErrTargetBusy = errors.New("target already has a live connection")
	// ErrAlreadyLive is returned by RequestSimulated once a terminal went live.
	ErrAlreadyLive = errors.New("terminal is in live mode")
)

// Options configures a Coordinator.
type Options struct {
	ID     string
	Target termproto.Target
	// Dialer opens live sessions. Nil disables live mode.
	Dialer       termsession.Dialer
	PingInterval time.Duration
	Record       bool
	RecordLimit  int

	Controller    instances.Controller
	InstanceName  string
	Clipboard     simterm.Clipboard
	AuthorizedKey string

	// OnClose receives the audit summary once the terminal is closed.
	OnClose func(Summary)

	locks *targetLocks
}

// View is the presentation snapshot of a terminal.
type View struct {
	ID     string           `json:"id"`
	Target termproto.Target `json:"target"`
	termsession.View
}

// Summary describes a finished terminal for auditing.
type Summary struct {
	ID            string
	Target        termproto.Target
	Mode          termsession.Mode
	Status        termsession.Status
	BytesReceived int64
	Commands      int
	CreatedAt     time.Time
	ClosedAt      time.Time
	Transcript    []byte
}

// Coordinator owns one terminal view. Commands are processed serially in
// submission order.
type Coordinator struct {
	opts      Options
	createdAt time.Time
	sim       *simterm.Interpreter
	simAsm    *termsession.Assembler

	// submitMu serializes Submit; mu guards the fields below and is never
	// held across I/O.
	submitMu sync.Mutex

	mu       sync.Mutex
	mode     termsession.Mode
	session  *termsession.Session
	commands int
	closed   bool
	closedAt time.Time

	notify chan struct{}
	stop   chan struct{}
}

// New creates a coordinator in simulated mode. Call Open to show the banner
// or to connect.
func New(opts Options) *Coordinator {
	return &Coordinator{
		opts:      opts,
		createdAt: time.Now(),
		sim: simterm.New(simterm.Options{
			Target:        opts.Target,
			Controller:    opts.Controller,
			InstanceName:  opts.InstanceName,
			Clipboard:     opts.Clipboard,
			AuthorizedKey: opts.AuthorizedKey,
		}),
		simAsm: termsession.NewAssembler(termsession.NewScrollback(), opts.Target, termsession.ModeSimulated, nil),
		mode:   termsession.ModeSimulated,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// ID returns the coordinator's identifier.
func (c *Coordinator) ID() string {
	return c.opts.ID
}

// Target returns the bound target.
func (c *Coordinator) Target() termproto.Target {
	return c.opts.Target
}

// CreatedAt returns when the terminal was opened.
func (c *Coordinator) CreatedAt() time.Time {
	return c.createdAt
}

// Mode returns the current mode.
func (c *Coordinator) Mode() termsession.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IsClosed reports whether Close has been called.
func (c *Coordinator) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClosedAt returns when the terminal was closed.
func (c *Coordinator) ClosedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt, c.closed
}

// Done is closed once Close has finished tearing the terminal down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.stop
}

// Updates returns a channel signaled whenever the view may have changed.
func (c *Coordinator) Updates() <-chan struct{} {
	return c.notify
}

// Open shows the terminal in the requested mode. Live mode connects
// immediately; ctx bounds the live session's lifetime.
func (c *Coordinator) Open(ctx context.Context, mode termsession.Mode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.simAsm.Reset()
	c.mu.Unlock()
	c.signal()

	if mode == termsession.ModeLive {
		return c.RequestLive(ctx)
	}
	return nil
}

// RequestLive upgrades the terminal to a live session. It fails fast, with a
// line in the scrollback, when the target has no address, live mode is not
// configured, or another terminal holds the target.
func (c *Coordinator) RequestLive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLiveLocked(ctx)
}

func (c *Coordinator) requestLiveLocked(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.session != nil && !c.session.Status().IsTerminal() {
		c.noticeLocked("Already connected to a live shell.")
		return nil
	}

	t := c.opts.Target
	switch {
	case t.Host == "":
		c.noticeLocked("Live mode unavailable: this instance has no IP address.")
		return ErrNoAddress
	case c.opts.Dialer == nil:
		c.noticeLocked("Live mode is not configured on this server.")
		return ErrLiveUnavailable
	case c.opts.locks != nil && !c.opts.locks.acquire(lockKey(t), c.opts.ID):
		c.noticeLocked(fmt.Sprintf("Another terminal is already connected to %s. Close it first.", t.Host))
		return ErrTargetBusy
	}

	s := termsession.New(termsession.Config{
		Target:       t,
		Dialer:       c.opts.Dialer,
		PingInterval: c.opts.PingInterval,
		Record:       c.opts.Record,
		RecordLimit:  c.opts.RecordLimit,
	})
	c.session = s
	c.mode = termsession.ModeLive
	s.Start(ctx)
	go c.forward(s)

	log.Printf("[terminal] %s: live session started for %s", c.opts.ID, logutil.SanitizeForLog(t.Host))
	return nil
}

// forward relays session updates until the session ends or the terminal
// closes, then releases the target unless a newer session took over.
func (c *Coordinator) forward(s *termsession.Session) {
	defer func() {
		c.mu.Lock()
		current := c.session == s
		c.mu.Unlock()
		if current {
			c.release()
		}
	}()
	for {
		select {
		case <-s.Updates():
			c.signal()
		case <-s.Done():
			c.signal()
			return
		case <-c.stop:
			return
		}
	}
}

// RequestSimulated keeps the terminal in simulated mode. Switching is one
// way: once live, a terminal never returns to simulated mode.
func (c *Coordinator) RequestSimulated() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.mode == termsession.ModeLive {
		c.noticeLocked("Already in live mode; close the terminal to use the simulated console.")
		return ErrAlreadyLive
	}
	return nil
}

// Submit processes one command line. Commands are handled one at a time in
// call order; the terminal lock is not held while a command is sent or
// evaluated, so View and Close never wait on the network.
func (c *Coordinator) Submit(ctx context.Context, line string) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	mode, s := c.mode, c.session
	if mode != termsession.ModeLive && strings.TrimSpace(line) == "" {
		c.mu.Unlock()
		return nil
	}
	c.commands++
	c.mu.Unlock()

	if mode == termsession.ModeLive {
		return s.Submit(ctx, line)
	}

	c.simAsm.Apply(termproto.Frame{Type: termproto.FrameCommandEcho, Data: "$ " + line})
	c.signal()
	res := c.sim.Evaluate(ctx, line)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if res.Clear {
		c.simAsm.Reset()
	} else {
		for _, l := range res.Lines {
			c.simAsm.Apply(termproto.Frame{Type: termproto.FrameOutput, Data: l})
		}
	}
	c.signal()

	var err error
	if res.SwitchLive {
		err = c.RequestLive(ctx)
	}
	if res.Exit {
		c.Close()
	}
	return err
}

// Interrupt sends the interrupt signal to a live session. It does not wait
// for a command that is still being sent.
func (c *Coordinator) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	mode, s := c.mode, c.session
	c.mu.Unlock()

	if mode == termsession.ModeLive {
		return s.Interrupt(ctx)
	}
	c.simAsm.Notice("^C")
	c.signal()
	return nil
}

// View returns the current presentation snapshot.
func (c *Coordinator) View() View {
	c.mu.Lock()
	mode, s, closed := c.mode, c.session, c.closed
	c.mu.Unlock()

	v := View{ID: c.opts.ID, Target: c.opts.Target}
	if mode == termsession.ModeLive {
		v.View = s.View()
		return v
	}
	status := termsession.StatusIdle
	if closed {
		status = termsession.StatusClosed
	}
	v.View = termsession.View{
		Mode:           termsession.ModeSimulated,
		Status:         status,
		Scrollback:     c.simAsm.Scrollback().Lines(),
		BytesReceived:  c.simAsm.BytesReceived(),
		LastActivityAt: c.simAsm.LastActivityAt(),
	}
	return v
}

// Close tears the terminal down. It is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closedAt = time.Now()
	s := c.session
	c.mu.Unlock()

	if s != nil {
		s.Close()
	}
	close(c.stop)
	c.release()
	c.signal()

	log.Printf("[terminal] %s: closed", c.opts.ID)
	if c.opts.OnClose != nil {
		c.opts.OnClose(c.summary())
	}
}

func (c *Coordinator) summary() Summary {
	v := c.View()
	c.mu.Lock()
	sum := Summary{
		ID:            c.opts.ID,
		Target:        c.opts.Target,
		Mode:          c.mode,
		Status:        v.Status,
		BytesReceived: v.BytesReceived,
		Commands:      c.commands,
		CreatedAt:     c.createdAt,
		ClosedAt:      c.closedAt,
	}
	s := c.session
	c.mu.Unlock()

	if s != nil && s.Recording() != nil {
		if b, err := s.Recording().ExportJSON(); err == nil {
			sum.Transcript = b
		} else {
			log.Printf("[terminal] %s: export transcript: %v", c.opts.ID, err)
		}
	}
	return sum
}

func (c *Coordinator) noticeLocked(line string) {
	if c.mode == termsession.ModeLive && c.session != nil {
		c.session.Notice(line)
	} else {
		c.simAsm.Notice(line)
	}
	c.signal()
}

func (c *Coordinator) release() {
	if c.opts.locks != nil {
		c.opts.locks.release(lockKey(c.opts.Target), c.opts.ID)
	}
}

func (c *Coordinator) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
