package termsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/console/internal/logutil"
	"github.com/gluk-w/claworc/console/internal/termproto"
)

// ErrNotConnected is returned by Submit and Interrupt unless the session is live.
var ErrNotConnected = errors.New("not connected")

// Config describes a Session to be created by New.
type Config struct {
	Target termproto.Target
	Dialer Dialer
	// PingInterval enables keep-alive pings while live. Zero disables them.
	PingInterval time.Duration
	// Record enables the session transcript.
	Record bool
	// RecordLimit caps the transcript entries. Zero uses DefaultRecordLimit.
	RecordLimit int
	// Now overrides the clock used for activity timestamps.
	Now func() time.Time
}

// View is a point-in-time snapshot for the presentation layer.
type View struct {
	Mode           Mode      `json:"mode"`
	Status         Status    `json:"status"`
	Scrollback     []string  `json:"scrollback"`
	BytesReceived  int64     `json:"bytes_received"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LastPongAt     time.Time `json:"last_pong_at"`
}

// Session owns one live connection to the remote bridge. The transport is
// exclusively owned by the Session and is closed exactly once, on whichever
// exit path comes first.
type Session struct {
	target       termproto.Target
	dialer       Dialer
	pingInterval time.Duration
	asm          *Assembler
	recording    *Recording

	// applyMu orders frame application against the terminal status line so
	// no output lands after it.
	applyMu sync.Mutex

	mu        sync.Mutex
	status    Status
	transport Transport
	released  bool // transport has been closed
	closing   bool // Close was called
	cancel    context.CancelFunc
	started   bool
	commands  int
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an idle session. Call Start to connect.
func New(cfg Config) *Session {
	s := &Session{
		target:       cfg.Target,
		dialer:       cfg.Dialer,
		pingInterval: cfg.PingInterval,
		asm:          NewAssembler(NewScrollback(), cfg.Target, ModeLive, cfg.Now),
		status:       StatusIdle,
		done:         make(chan struct{}),
	}
	if cfg.Record {
		limit := cfg.RecordLimit
		if limit <= 0 {
			limit = DefaultRecordLimit
		}
		s.recording = NewRecording(limit)
	}
	return s
}

// Target returns the host this session is bound to.
func (s *Session) Target() termproto.Target {
	return s.target
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CanSubmit reports whether commands are currently accepted.
func (s *Session) CanSubmit() bool {
	return s.Status() == StatusLive
}

// CommandCount returns the number of command frames sent.
func (s *Session) CommandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Recording returns the transcript, or nil if recording is disabled.
func (s *Session) Recording() *Recording {
	return s.recording
}

// Updates returns a channel signaled whenever the scrollback changes. Every
// status transition also changes the scrollback.
func (s *Session) Updates() <-chan struct{} {
	return s.asm.Scrollback().Notify()
}

// Done is closed when the connection goroutine has exited, or when a session
// that was never started is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// View returns a snapshot of the presentation state.
func (s *Session) View() View {
	return View{
		Mode:           ModeLive,
		Status:         s.Status(),
		Scrollback:     s.asm.Scrollback().Lines(),
		BytesReceived:  s.asm.BytesReceived(),
		LastActivityAt: s.asm.LastActivityAt(),
		LastPongAt:     s.asm.LastPongAt(),
	}
}

// Notice appends locally generated lines, e.g. a coordinator message.
func (s *Session) Notice(lines ...string) {
	s.asm.Notice(lines...)
}

// Start connects eagerly. It returns immediately; the dial, the init frame,
// and the read loop run on a background goroutine. Starting a session that is
// not idle is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.status != StatusIdle || s.closing {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnecting
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.asm.ShowPlaceholder()
	go s.run(runCtx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	tr, err := s.dialer.Dial(ctx, s.target)
	if err != nil {
		log.Printf("[termsession] connect to %s failed: %v", logutil.SanitizeForLog(s.target.Host), err)
		s.terminate(StatusFailed, fmt.Sprintf("Failed to connect to %s: %v", hostLabel(s.target), err))
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if err := tr.Close(); err != nil {
			log.Printf("[termsession] close transport after teardown: %v", err)
		}
		return
	}
	s.transport = tr
	s.mu.Unlock()

	if err := s.write(ctx, tr, termproto.InitFrame(s.target)); err != nil {
		s.sendFailed(err)
		return
	}
	log.Printf("[termsession] init sent for %s", logutil.SanitizeForLog(s.target.Host))

	if s.pingInterval > 0 {
		go s.keepAlive(ctx, tr)
	}

	for {
		data, err := tr.Read(ctx)
		if err != nil {
			s.readFailed(err)
			return
		}
		s.handleRaw(data)
	}
}

// handleRaw decodes one wire payload. Malformed payloads are logged and
// dropped without touching state or scrollback.
func (s *Session) handleRaw(data []byte) {
	f, err := termproto.Decode(data)
	if err != nil {
		log.Printf("[termsession] dropping frame: %v", err)
		return
	}
	s.HandleFrame(f)
}

// HandleFrame applies one inbound frame: it drives the state machine and
// feeds the assembler. Frames with unknown tags are ignored.
func (s *Session) HandleFrame(f termproto.Frame) Update {
	if !f.Known() {
		log.Printf("[termsession] ignoring frame with unknown type %q", logutil.SanitizeForLog(string(f.Type)))
		return Update{Ignored: true}
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	if status.IsTerminal() {
		return Update{Ignored: true}
	}
	if f.Type == termproto.FrameConnected && status != StatusConnecting {
		log.Printf("[termsession] ignoring connected frame in state %s", status)
		return Update{Ignored: true}
	}

	update := s.asm.Apply(f)
	if update.Connected {
		s.mu.Lock()
		if s.status == StatusConnecting {
			s.status = StatusLive
		}
		s.mu.Unlock()
		log.Printf("[termsession] live on %s", logutil.SanitizeForLog(s.target.Host))
	}
	if s.recording != nil && f.Type.IsData() {
		s.recording.RecordOutput(f.Data)
	}
	return update
}

// Submit sends one command line. Unless the session is live it sends nothing,
// appends a notice and returns ErrNotConnected.
func (s *Session) Submit(ctx context.Context, command string) error {
	if err := s.submitFrame(ctx, termproto.CommandFrame(command)); err != nil {
		return err
	}
	if s.recording != nil {
		s.recording.RecordInput(command)
	}
	return nil
}

// Interrupt asks the remote side to interrupt the running command by sending
// a command frame with an empty command string.
func (s *Session) Interrupt(ctx context.Context) error {
	if err := s.submitFrame(ctx, termproto.InterruptFrame()); err != nil {
		return err
	}
	s.asm.Notice("^C")
	return nil
}

func (s *Session) submitFrame(ctx context.Context, f termproto.Frame) error {
	s.mu.Lock()
	status, tr := s.status, s.transport
	s.mu.Unlock()

	if status != StatusLive || tr == nil {
		s.asm.Notice(fmt.Sprintf("Not connected (%s): command not sent.", status))
		return ErrNotConnected
	}
	if err := s.write(ctx, tr, f); err != nil {
		s.sendFailed(err)
		return fmt.Errorf("send command: %w", err)
	}
	s.mu.Lock()
	s.commands++
	s.mu.Unlock()
	return nil
}

func (s *Session) write(ctx context.Context, tr Transport, f termproto.Frame) error {
	b, err := termproto.Encode(f)
	if err != nil {
		return err
	}
	return tr.Write(ctx, b)
}

func (s *Session) keepAlive(ctx context.Context, tr Transport) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Status() != StatusLive {
				continue
			}
			if err := s.write(ctx, tr, termproto.PingFrame()); err != nil {
				s.sendFailed(err)
				return
			}
		}
	}
}

func (s *Session) sendFailed(err error) {
	log.Printf("[termsession] send to %s failed: %v", logutil.SanitizeForLog(s.target.Host), err)
	s.terminate(StatusFailed, fmt.Sprintf("Connection error: %v", err))
}

// readFailed maps the end of the read loop to a terminal state: a clean close
// while live is "closed", everything else is "failed".
func (s *Session) readFailed(err error) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	switch {
	case status == StatusLive && errors.Is(err, ErrTransportClosed):
		log.Printf("[termsession] connection to %s closed by remote", logutil.SanitizeForLog(s.target.Host))
		s.terminate(StatusClosed, "Connection closed.")
	case status == StatusConnecting:
		log.Printf("[termsession] connection to %s lost during handshake: %v", logutil.SanitizeForLog(s.target.Host), err)
		s.terminate(StatusFailed, fmt.Sprintf("Connection to %s lost before the shell was ready.", hostLabel(s.target)))
	default:
		log.Printf("[termsession] read from %s failed: %v", logutil.SanitizeForLog(s.target.Host), err)
		s.terminate(StatusFailed, fmt.Sprintf("Connection error: %v", err))
	}
}

// terminate moves the session to a terminal state once, appends the status
// line, releases the transport and stops the keep-alive. It does nothing
// after Close.
func (s *Session) terminate(to Status, line string) {
	s.applyMu.Lock()
	s.mu.Lock()
	if s.closing || s.status.IsTerminal() {
		s.mu.Unlock()
		s.applyMu.Unlock()
		return
	}
	s.status = to
	cancel := s.cancel
	s.mu.Unlock()
	s.asm.Resolve(line)
	s.applyMu.Unlock()

	s.releaseTransport()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) releaseTransport() {
	s.mu.Lock()
	tr := s.transport
	if tr == nil || s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	if err := tr.Close(); err != nil {
		log.Printf("[termsession] close transport: %v", err)
	}
}

// Close tears the session down from any state. It is synchronous and
// idempotent: the transport is closed exactly once and at most one
// "connection closed" line is appended.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.applyMu.Lock()
		s.mu.Lock()
		s.closing = true
		prev := s.status
		if !prev.IsTerminal() {
			s.status = StatusClosed
		}
		cancel := s.cancel
		started := s.started
		s.mu.Unlock()
		if prev == StatusConnecting || prev == StatusLive {
			s.asm.Resolve("Connection closed.")
		}
		s.applyMu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.releaseTransport()
		if !started {
			close(s.done)
		}
	})
}
