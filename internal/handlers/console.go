package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/gluk-w/claworc/console/internal/config"
	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/logutil"
	"github.com/gluk-w/claworc/console/internal/terminal"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

const (
	// maxConsoleMessage bounds one browser message.
	maxConsoleMessage = 64 * 1024
	// maxCommandLength bounds one submitted command line.
	maxCommandLength = 4096

	consoleWriteTimeout = 10 * time.Second

	defaultInputRate  = 20
	defaultInputBurst = 40
)

// Terminals is set from main.go during init.
var Terminals *terminal.Manager

// LiveEnabled reports whether a bridge is configured for live terminals.
var LiveEnabled bool

// consoleClientMsg is a message from the browser.
type consoleClientMsg struct {
	Type string `json:"type"` // command, interrupt, live, simulated
	Data string `json:"data,omitempty"`
}

// consoleServerMsg is a message to the browser.
type consoleServerMsg struct {
	Type      string         `json:"type"` // session_info, view, clipboard
	SessionID string         `json:"session_id,omitempty"`
	View      *terminal.View `json:"view,omitempty"`
	Text      string         `json:"text,omitempty"`
}

// ConsoleWS serves one terminal view over a WebSocket.
//
// Query parameters:
//   - mode: "simulated" or "live"; defaults to the configured default mode.
//
// The server pushes a full view snapshot whenever the terminal changes. The
// terminal is closed when the socket goes away.
func ConsoleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		http.Error(w, "Invalid instance ID", http.StatusBadRequest)
		return
	}

	mode := termsession.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = termsession.Mode(config.Cfg.DefaultMode)
	}
	if mode != termsession.ModeLive && mode != termsession.ModeSimulated {
		mode = termsession.ModeSimulated
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[console] failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	inst, err := database.GetInstance(id)
	if err != nil {
		conn.Close(4004, "Instance not found")
		return
	}
	if Terminals == nil {
		conn.Close(4500, "Terminal manager not initialized")
		return
	}

	conn.SetReadLimit(maxConsoleMessage)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	term := Terminals.Create(terminal.CreateOptions{
		Target:        inst.Target(),
		Controller:    instances.Get(),
		InstanceName:  inst.ControlName(),
		Clipboard:     &wsClipboard{ctx: ctx, conn: conn},
		AuthorizedKey: inst.SSHPublicKey,
	})
	defer term.Close()

	if err := writeConsoleMsg(ctx, conn, consoleServerMsg{Type: "session_info", SessionID: term.ID()}); err != nil {
		return
	}

	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		if err := pushViews(ctx, conn, term); err != nil {
			cancel()
			return
		}
		conn.Close(websocket.StatusNormalClosure, "terminal closed")
	}()

	if err := term.Open(ctx, mode); err != nil {
		log.Printf("[console] %s: open %s: %v", term.ID(), mode, err)
	}

	readConsole(ctx, conn, term)
	term.Close()
	<-pushDone
	conn.Close(websocket.StatusNormalClosure, "")
}

// readConsole applies browser messages to the terminal until the socket or
// the terminal closes.
func readConsole(ctx context.Context, conn *websocket.Conn, term *terminal.Coordinator) {
	limiter := newTokenBucket(config.Cfg.ConsoleInputBurst, config.Cfg.ConsoleInputRate)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.allow() {
			continue
		}

		var msg consoleClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[console] %s: dropping malformed message: %v", term.ID(), err)
			continue
		}

		switch msg.Type {
		case "command":
			if len(msg.Data) > maxCommandLength {
				log.Printf("[console] %s: command too long (%d bytes)", term.ID(), len(msg.Data))
				continue
			}
			err = term.Submit(ctx, msg.Data)
		case "interrupt":
			err = term.Interrupt(ctx)
		case "live":
			err = term.RequestLive(ctx)
		case "simulated":
			err = term.RequestSimulated()
		default:
			log.Printf("[console] %s: unknown message type %q", term.ID(), logutil.SanitizeForLog(msg.Type))
			continue
		}

		// Refusals are already shown in the scrollback.
		switch {
		case err == nil:
		case errors.Is(err, terminal.ErrClosed):
			return
		case errors.Is(err, termsession.ErrNotConnected),
			errors.Is(err, terminal.ErrNoAddress),
			errors.Is(err, terminal.ErrLiveUnavailable),
			errors.Is(err, terminal.ErrTargetBusy),
			errors.Is(err, terminal.ErrAlreadyLive):
		default:
			log.Printf("[console] %s: %s: %v", term.ID(), msg.Type, err)
		}
	}
}

// pushViews sends a snapshot on every update. It returns nil once the
// terminal is closed and the final snapshot was sent.
func pushViews(ctx context.Context, conn *websocket.Conn, term *terminal.Coordinator) error {
	for {
		v := term.View()
		if err := writeConsoleMsg(ctx, conn, consoleServerMsg{Type: "view", View: &v}); err != nil {
			return err
		}
		select {
		case <-term.Updates():
		case <-term.Done():
			v := term.View()
			return writeConsoleMsg(ctx, conn, consoleServerMsg{Type: "view", View: &v})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeConsoleMsg(ctx context.Context, conn *websocket.Conn, msg consoleServerMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, consoleWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// wsClipboard asks the browser to copy text.
type wsClipboard struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (c *wsClipboard) Copy(text string) error {
	return writeConsoleMsg(c.ctx, c.conn, consoleServerMsg{Type: "clipboard", Text: text})
}

// tokenBucket rate-limits browser messages on one connection.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens int, refillRate float64) *tokenBucket {
	if maxTokens <= 0 {
		maxTokens = defaultInputBurst
	}
	if refillRate <= 0 {
		refillRate = defaultInputRate
	}
	return &tokenBucket{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes a token if one is available.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	tb.tokens = min(tb.maxTokens, tb.tokens+now.Sub(tb.lastRefill).Seconds()*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
