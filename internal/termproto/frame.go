// Package termproto defines the JSON frame protocol spoken between a console
// session and the remote terminal bridge.
//
// Every frame is a single JSON object {"type": <tag>, ...payload} carried in
// one WebSocket text message. The protocol is versionless: frames with an
// unknown tag decode successfully and are ignored by receivers.
//
// Client → bridge: init, command, ping.
// Bridge → client: connected, line_output, output, command_echo, error, pong.
package termproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// FrameType is the tag of a protocol frame.
type FrameType string

const (
	FrameInit        FrameType = "init"
	FrameConnected   FrameType = "connected"
	FrameLineOutput  FrameType = "line_output"
	FrameOutput      FrameType = "output" // legacy shape, handled like line_output
	FrameCommandEcho FrameType = "command_echo"
	FrameCommand     FrameType = "command"
	FrameError       FrameType = "error"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
)

// Known returns true if the tag belongs to the protocol vocabulary.
func (t FrameType) Known() bool {
	switch t {
	case FrameInit, FrameConnected, FrameLineOutput, FrameOutput, FrameCommandEcho,
		FrameCommand, FrameError, FramePing, FramePong:
		return true
	default:
		return false
	}
}

// IsData returns true for frames that carry shell output.
func (t FrameType) IsData() bool {
	return t == FrameLineOutput || t == FrameOutput
}

// ErrMalformedFrame is returned by Decode for payloads that are not a JSON
// object with a type tag.
var ErrMalformedFrame = errors.New("malformed frame")

// Target identifies the remote host a session is bound to.
type Target struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Host string `json:"host"`
	User string `json:"user,omitempty"`
}

// Frame is a single protocol message.
type Frame struct {
	Type    FrameType `json:"type"`
	Target  *Target   `json:"target,omitempty"`
	Data    string    `json:"data,omitempty"`
	Command *string   `json:"command,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Known reports whether the frame's tag is part of the vocabulary.
func (f Frame) Known() bool {
	return f.Type.Known()
}

// CommandText returns the command string of a command frame, or "" if absent.
func (f Frame) CommandText() string {
	if f.Command == nil {
		return ""
	}
	return *f.Command
}

// InitFrame declares the dial target. It must be the first frame sent.
func InitFrame(t Target) Frame {
	return Frame{Type: FrameInit, Target: &t}
}

// CommandFrame submits one command line to the remote shell.
func CommandFrame(command string) Frame {
	return Frame{Type: FrameCommand, Command: &command}
}

// InterruptFrame is a command frame with an empty command string. The bridge
// treats it as an interrupt for the running command.
func InterruptFrame() Frame {
	return CommandFrame("")
}

// PingFrame asks the bridge for a pong.
func PingFrame() Frame {
	return Frame{Type: FramePing}
}

// Encode serializes a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, fmt.Errorf("encode frame: %w: missing type", ErrMalformedFrame)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return b, nil
}

// Decode parses a single frame. Unknown tags are not an error.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// Endpoint builds the per-target bridge URL. http and https bases are
// rewritten to ws and wss.
func Endpoint(base, targetID string) (string, error) {
	if targetID == "" {
		return "", errors.New("endpoint: empty target id")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("endpoint: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("endpoint: unsupported scheme %q", u.Scheme)
	}
	rawPath := strings.TrimRight(u.EscapedPath(), "/") + "/terminal/" + url.PathEscape(targetID)
	u.Path = strings.TrimRight(u.Path, "/") + "/terminal/" + targetID
	u.RawPath = rawPath
	return u.String(), nil
}
