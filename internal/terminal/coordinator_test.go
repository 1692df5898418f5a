package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/termproto"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

// pipeTransport is an in-memory bridge connection driven by the test.
type pipeTransport struct {
	inbound chan []byte
	done    chan struct{}
	// hold, when set, stalls every non-empty command write until closed.
	hold chan struct{}

	mu     sync.Mutex
	sent   []termproto.Frame
	closed bool
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (p *pipeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.inbound:
		return b, nil
	case <-p.done:
		return nil, termsession.ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Write(ctx context.Context, b []byte) error {
	f, err := termproto.Decode(b)
	if err != nil {
		return err
	}
	if p.hold != nil && f.Type == termproto.FrameCommand && f.CommandText() != "" {
		select {
		case <-p.hold:
		case <-p.done:
			return termsession.ErrTransportClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.sent = append(p.sent, f)
	p.mu.Unlock()
	return nil
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *pipeTransport) frames() []termproto.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]termproto.Frame(nil), p.sent...)
}

func (p *pipeTransport) send(t *testing.T, f termproto.Frame) {
	t.Helper()
	b, err := termproto.Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p.inbound <- b
}

// pipeDialer hands out a fresh pipeTransport per dial.
type pipeDialer struct {
	mu    sync.Mutex
	pipes []*pipeTransport
	err   error
	hold  chan struct{}
}

func (d *pipeDialer) Dial(ctx context.Context, target termproto.Target) (termsession.Transport, error) {
	if d.err != nil {
		return nil, d.err
	}
	p := newPipeTransport()
	p.hold = d.hold
	d.mu.Lock()
	d.pipes = append(d.pipes, p)
	d.mu.Unlock()
	return p, nil
}

func (d *pipeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipes)
}

func (d *pipeDialer) last() *pipeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pipes) == 0 {
		return nil
	}
	return d.pipes[len(d.pipes)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

var target = termproto.Target{ID: "7", Name: "web-1", Host: "10.0.0.5"}

func openSimulated(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "term-1"
	}
	if opts.Target == (termproto.Target{}) {
		opts.Target = target
	}
	c := New(opts)
	if err := c.Open(context.Background(), termsession.ModeSimulated); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// goLive drives a coordinator through the bridge handshake.
func goLive(t *testing.T, c *Coordinator, d *pipeDialer) *pipeTransport {
	t.Helper()
	before := d.count()
	if err := c.RequestLive(context.Background()); err != nil {
		t.Fatalf("RequestLive: %v", err)
	}
	waitFor(t, "dial", func() bool { return d.count() == before+1 })
	p := d.last()
	waitFor(t, "init frame", func() bool { return len(p.frames()) == 1 })
	p.send(t, termproto.Frame{Type: termproto.FrameConnected})
	waitFor(t, "live status", func() bool { return c.View().Status == termsession.StatusLive })
	return p
}

func TestCoordinator_OpenSimulatedShowsBanner(t *testing.T) {
	c := openSimulated(t, Options{})

	v := c.View()
	if v.Mode != termsession.ModeSimulated {
		t.Errorf("mode = %s, want simulated", v.Mode)
	}
	if v.Status != termsession.StatusIdle {
		t.Errorf("status = %s, want idle", v.Status)
	}
	if len(v.Scrollback) != termsession.BannerLines {
		t.Errorf("scrollback has %d lines, want %d", len(v.Scrollback), termsession.BannerLines)
	}
}

func TestCoordinator_SimulatedSubmitEchoesAndEvaluates(t *testing.T) {
	c := openSimulated(t, Options{})

	if err := c.Submit(context.Background(), "ls -la"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	lines := c.View().Scrollback
	if got := len(lines); got != termsession.BannerLines+1+5 {
		t.Fatalf("scrollback has %d lines, want %d", got, termsession.BannerLines+6)
	}
	if lines[termsession.BannerLines] != "$ ls -la" {
		t.Errorf("echo line = %q", lines[termsession.BannerLines])
	}
	if !strings.HasPrefix(lines[termsession.BannerLines+1], "total") {
		t.Errorf("listing starts with %q", lines[termsession.BannerLines+1])
	}
}

func TestCoordinator_SimulatedUnknownCommandStaysLocal(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})

	c.Submit(context.Background(), "foobar")
	if !contains(c.View().Scrollback, "Command not found: foobar") {
		t.Errorf("scrollback missing unknown-command line: %q", c.View().Scrollback)
	}
	if d.last() != nil {
		t.Error("unknown simulated command should not open a connection")
	}
}

func TestCoordinator_ClearResetsToBanner(t *testing.T) {
	c := openSimulated(t, Options{})
	for i := 0; i < 5; i++ {
		c.Submit(context.Background(), "pwd")
	}
	c.Submit(context.Background(), "clear")

	v := c.View()
	if len(v.Scrollback) != termsession.BannerLines {
		t.Fatalf("scrollback has %d lines after clear, want %d", len(v.Scrollback), termsession.BannerLines)
	}
	want := termsession.Banner(target, termsession.ModeSimulated)
	for i := range want {
		if v.Scrollback[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, v.Scrollback[i], want[i])
		}
	}
}

func TestCoordinator_ExitCloses(t *testing.T) {
	var got []Summary
	c := openSimulated(t, Options{OnClose: func(s Summary) { got = append(got, s) }})

	c.Submit(context.Background(), "exit")

	if !c.IsClosed() {
		t.Fatal("exit should close the terminal")
	}
	if len(got) != 1 {
		t.Fatalf("OnClose called %d times, want 1", len(got))
	}
	if got[0].Mode != termsession.ModeSimulated || got[0].Commands != 1 {
		t.Errorf("summary = %+v", got[0])
	}
	if err := c.Submit(context.Background(), "pwd"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after exit = %v, want ErrClosed", err)
	}
}

func TestCoordinator_RequestLiveWithoutAddress(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d, Target: termproto.Target{ID: "9", Name: "db"}})

	err := c.RequestLive(context.Background())
	if !errors.Is(err, ErrNoAddress) {
		t.Fatalf("RequestLive = %v, want ErrNoAddress", err)
	}
	v := c.View()
	if v.Mode != termsession.ModeSimulated {
		t.Errorf("mode = %s, want simulated", v.Mode)
	}
	if !contains(v.Scrollback, "no IP address") {
		t.Errorf("scrollback missing failure line: %q", v.Scrollback)
	}
	if d.last() != nil {
		t.Error("no connection should be attempted without an address")
	}
}

func TestCoordinator_RequestLiveWithoutDialer(t *testing.T) {
	c := openSimulated(t, Options{})
	if err := c.RequestLive(context.Background()); !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("RequestLive = %v, want ErrLiveUnavailable", err)
	}
}

func TestCoordinator_LiveCommandSwitchesMode(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})

	c.Submit(context.Background(), "live")
	waitFor(t, "dial", func() bool { return d.last() != nil })
	p := d.last()
	waitFor(t, "init frame", func() bool { return len(p.frames()) == 1 })
	if f := p.frames()[0]; f.Type != termproto.FrameInit || f.Target.Host != "10.0.0.5" {
		t.Fatalf("first frame = %+v, want init for 10.0.0.5", f)
	}
	p.send(t, termproto.Frame{Type: termproto.FrameConnected})
	waitFor(t, "live status", func() bool { return c.View().Status == termsession.StatusLive })

	if c.Mode() != termsession.ModeLive {
		t.Errorf("mode = %s, want live", c.Mode())
	}
	if got := len(c.View().Scrollback); got != termsession.BannerLines {
		t.Errorf("live scrollback has %d lines, want %d", got, termsession.BannerLines)
	}
}

func TestCoordinator_LiveSubmitForwardsInOrder(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})
	p := goLive(t, c, d)

	for _, cmd := range []string{"uptime", "df -h", "whoami"} {
		if err := c.Submit(context.Background(), cmd); err != nil {
			t.Fatalf("Submit(%q): %v", cmd, err)
		}
	}
	if err := c.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	frames := p.frames()[1:]
	want := []string{"uptime", "df -h", "whoami", ""}
	if len(frames) != len(want) {
		t.Fatalf("sent %d command frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Type != termproto.FrameCommand || f.CommandText() != want[i] {
			t.Errorf("frame %d = %+v, want command %q", i, f, want[i])
		}
	}
}

func TestCoordinator_LiveOutputReachesView(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})
	p := goLive(t, c, d)

	p.send(t, termproto.Frame{Type: termproto.FrameLineOutput, Data: "0123456789"})
	p.send(t, termproto.Frame{Type: termproto.FrameOutput, Data: strings.Repeat("x", 25)})
	waitFor(t, "output", func() bool { return c.View().BytesReceived == 35 })

	v := c.View()
	if v.LastActivityAt.IsZero() {
		t.Error("lastActivityAt not set")
	}
	if v.Scrollback[len(v.Scrollback)-2] != "0123456789" {
		t.Errorf("scrollback tail = %q", v.Scrollback[len(v.Scrollback)-2:])
	}
}

func TestCoordinator_NoDowngradeFromLive(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})
	goLive(t, c, d)

	if err := c.RequestSimulated(); !errors.Is(err, ErrAlreadyLive) {
		t.Fatalf("RequestSimulated = %v, want ErrAlreadyLive", err)
	}
	if c.Mode() != termsession.ModeLive {
		t.Errorf("mode = %s, want live", c.Mode())
	}
}

func TestCoordinator_SecondRequestLiveIsNoop(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})
	goLive(t, c, d)

	if err := c.RequestLive(context.Background()); err != nil {
		t.Fatalf("second RequestLive: %v", err)
	}
	if dials := d.count(); dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
}

func TestCoordinator_RemoteCloseEndsLiveSession(t *testing.T) {
	d := &pipeDialer{}
	c := openSimulated(t, Options{Dialer: d})
	p := goLive(t, c, d)

	p.Close()
	waitFor(t, "closed status", func() bool { return c.View().Status == termsession.StatusClosed })
	if err := c.Submit(context.Background(), "ls"); !errors.Is(err, termsession.ErrNotConnected) {
		t.Errorf("Submit after remote close = %v, want ErrNotConnected", err)
	}
}

func TestCoordinator_CloseIsIdempotent(t *testing.T) {
	d := &pipeDialer{}
	calls := 0
	c := openSimulated(t, Options{Dialer: d, Record: true, OnClose: func(Summary) { calls++ }})
	p := goLive(t, c, d)
	c.Submit(context.Background(), "uptime")

	c.Close()
	c.Close()

	if calls != 1 {
		t.Errorf("OnClose called %d times, want 1", calls)
	}
	v := c.View()
	if v.Status != termsession.StatusClosed {
		t.Errorf("status = %s, want closed", v.Status)
	}
	n := 0
	for _, l := range v.Scrollback {
		if l == "Connection closed." {
			n++
		}
	}
	if n != 1 {
		t.Errorf("close line appended %d times, want 1", n)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		t.Error("transport not closed")
	}
}

func TestCoordinator_SummaryCarriesTranscript(t *testing.T) {
	d := &pipeDialer{}
	var sum Summary
	c := openSimulated(t, Options{Dialer: d, Record: true, OnClose: func(s Summary) { sum = s }})
	p := goLive(t, c, d)

	c.Submit(context.Background(), "uptime")
	p.send(t, termproto.Frame{Type: termproto.FrameOutput, Data: "up 3 days"})
	waitFor(t, "output", func() bool { return c.View().BytesReceived == 9 })
	c.Close()

	if sum.Mode != termsession.ModeLive || sum.BytesReceived != 9 || sum.Commands != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !strings.Contains(string(sum.Transcript), "up 3 days") {
		t.Errorf("transcript = %s", sum.Transcript)
	}
}

// slowController blocks Restart until release is closed.
type slowController struct {
	entered chan struct{}
	release chan struct{}
}

func (s *slowController) BackendName() string                          { return "slow" }
func (s *slowController) Start(ctx context.Context, name string) error { return nil }
func (s *slowController) Stop(ctx context.Context, name string) error  { return nil }
func (s *slowController) Status(ctx context.Context, name string) (string, error) {
	return "running", nil
}
func (s *slowController) Describe(ctx context.Context, name string) (instances.Info, error) {
	return instances.Info{Name: name}, nil
}
func (s *slowController) Restart(ctx context.Context, name string) error {
	close(s.entered)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// returnsWithin fails the test if fn does not return in time.
func returnsWithin(t *testing.T, what string, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked for %s", what, d)
	}
}

func TestCoordinator_StalledSendDoesNotBlockViewOrClose(t *testing.T) {
	d := &pipeDialer{hold: make(chan struct{})}
	c := openSimulated(t, Options{Dialer: d})
	goLive(t, c, d)

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), "sleep 60") }()
	time.Sleep(20 * time.Millisecond)

	returnsWithin(t, "View", 500*time.Millisecond, func() { c.View() })
	returnsWithin(t, "Interrupt", 500*time.Millisecond, func() { c.Interrupt(context.Background()) })
	returnsWithin(t, "Close", 500*time.Millisecond, c.Close)

	select {
	case err := <-result:
		if err == nil {
			t.Error("stalled Submit succeeded after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled Submit never returned after close")
	}
}

func TestCoordinator_SlowControllerDoesNotBlockView(t *testing.T) {
	ctrl := &slowController{entered: make(chan struct{}), release: make(chan struct{})}
	c := openSimulated(t, Options{Controller: ctrl, InstanceName: "web-1"})

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), "restart") }()
	<-ctrl.entered

	returnsWithin(t, "View", 500*time.Millisecond, func() {
		if !contains(c.View().Scrollback, "$ restart") {
			t.Error("command echo not visible while the action runs")
		}
	})

	close(ctrl.release)
	if err := <-result; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !contains(c.View().Scrollback, "Restart requested for web-1.") {
		t.Errorf("restart result missing: %q", c.View().Scrollback)
	}
}

func TestCoordinator_SubmitAfterSlowActionKeepsOrder(t *testing.T) {
	ctrl := &slowController{entered: make(chan struct{}), release: make(chan struct{})}
	c := openSimulated(t, Options{Controller: ctrl, InstanceName: "web-1"})

	first := make(chan error, 1)
	go func() { first <- c.Submit(context.Background(), "restart") }()
	<-ctrl.entered

	second := make(chan error, 1)
	go func() { second <- c.Submit(context.Background(), "pwd") }()
	time.Sleep(20 * time.Millisecond)
	if contains(c.View().Scrollback, "$ pwd") {
		t.Fatal("second command ran before the first finished")
	}

	close(ctrl.release)
	<-first
	<-second

	lines := c.View().Scrollback
	restart, pwd := -1, -1
	for i, l := range lines {
		switch l {
		case "Restart requested for web-1.":
			restart = i
		case "$ pwd":
			pwd = i
		}
	}
	if restart < 0 || pwd < 0 || restart > pwd {
		t.Errorf("commands out of order: %q", lines)
	}
}
