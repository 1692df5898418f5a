package termsession

import (
	"fmt"

	"github.com/gluk-w/claworc/console/internal/termproto"
)

// Mode tells whether a terminal is backed by a live bridge connection or by
// the local simulated interpreter.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// BannerLines is the fixed height of the welcome banner.
const BannerLines = 7

// Banner returns the welcome block shown when a terminal becomes usable.
// It always has exactly BannerLines lines.
func Banner(t termproto.Target, mode Mode) []string {
	title := "Simulated terminal for " + targetLabel(t)
	hint := "Type 'live' to open a live shell on the instance."
	if mode == ModeLive {
		title = "Connected to " + targetLabel(t)
		hint = "Press Ctrl+C to interrupt the running command."
	}
	return []string{
		title,
		fmt.Sprintf("Address: %s", hostLabel(t)),
		"",
		"Type 'help' for available commands.",
		hint,
		"Type 'exit' to close this terminal.",
		"",
	}
}

// Placeholder is the line shown while a connection is being established.
func Placeholder(t termproto.Target) string {
	return fmt.Sprintf("Connecting to %s...", hostLabel(t))
}

func targetLabel(t termproto.Target) string {
	switch {
	case t.Name != "":
		return t.Name
	case t.ID != "":
		return "instance " + t.ID
	default:
		return "instance"
	}
}

func hostLabel(t termproto.Target) string {
	if t.Host == "" {
		return "unknown"
	}
	return t.Host
}
