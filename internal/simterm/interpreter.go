// Package simterm is the simulated command interpreter used when a terminal
// has no live connection. It answers a fixed vocabulary of commands with
// canned output. Only the instance actions (start, shutdown, restart, status,
// system-info) reach an external system, through the instance controller.
package simterm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docker/go-units"
	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/logutil"
	"github.com/gluk-w/claworc/console/internal/termproto"
	"github.com/gluk-w/claworc/console/internal/termsession"
	"golang.org/x/crypto/ssh"
)

// Clipboard copies text for the user. A failed copy is not an error for the
// command that requested it.
type Clipboard interface {
	Copy(text string) error
}

// Result is the outcome of evaluating one command line.
type Result struct {
	Lines []string
	// Clear asks the caller to reset the scrollback to Lines.
	Clear bool
	// Exit asks the caller to close the terminal.
	Exit bool
	// SwitchLive asks the caller to upgrade to a live session.
	SwitchLive bool
}

// Options configures an Interpreter.
type Options struct {
	Target termproto.Target
	// Controller performs instance actions. Nil disables them.
	Controller instances.Controller
	// InstanceName is the name the controller knows the target by. Empty
	// uses Target.Name.
	InstanceName string
	// Clipboard receives the SSH connection string. Nil skips the copy.
	Clipboard Clipboard
	// AuthorizedKey is the public key installed on the instance, in
	// authorized_keys format. Its fingerprint is shown by "ssh".
	AuthorizedKey string
}

// Interpreter evaluates simulated commands for one target.
type Interpreter struct {
	opts Options
}

// New creates an interpreter.
func New(opts Options) *Interpreter {
	return &Interpreter{opts: opts}
}

// Evaluate runs one command line. Matching is case-insensitive on the
// trimmed input. It never returns an error: failures become output lines.
func (in *Interpreter) Evaluate(ctx context.Context, line string) Result {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Result{}
	}
	key := normalize(trimmed)

	cmd, ok := vocabulary[key]
	if !ok {
		return Result{Lines: unknownCommand(trimmed, key)}
	}

	switch cmd.kind {
	case kindStatic:
		return Result{Lines: append([]string(nil), cmd.lines...)}
	case kindHelp:
		return Result{Lines: helpLines()}
	case kindClear:
		return Result{Lines: termsession.Banner(in.opts.Target, termsession.ModeSimulated), Clear: true}
	case kindExit:
		return Result{Lines: []string{"Closing terminal..."}, Exit: true}
	case kindLive:
		return Result{Lines: []string{"Switching to live mode..."}, SwitchLive: true}
	case kindSSH:
		return Result{Lines: in.sshConnection()}
	case kindAction:
		return Result{Lines: in.runAction(ctx, cmd.action)}
	default:
		return Result{Lines: unknownCommand(trimmed, key)}
	}
}

// normalize lower-cases and collapses inner whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func helpLines() []string {
	lines := []string{"Available commands:"}
	for _, name := range helpOrder {
		cmd := vocabulary[name]
		if cmd.summary == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-12s %s", name, cmd.summary))
	}
	return lines
}

func unknownCommand(trimmed, key string) []string {
	if looksLikeShell(key) {
		return []string{
			fmt.Sprintf("'%s' is a shell command and cannot run in simulated mode.", trimmed),
			"Type 'live' to open a live shell, or 'logs' for recent log excerpts.",
		}
	}
	return []string{
		fmt.Sprintf("Command not found: %s", trimmed),
		"Type 'help' to see available commands.",
	}
}

func looksLikeShell(key string) bool {
	if strings.Contains(key, "/var/log") {
		return true
	}
	first := strings.Fields(key)[0]
	for _, p := range shellPrefixes {
		if first == p {
			return true
		}
	}
	return false
}

func (in *Interpreter) sshConnection() []string {
	t := in.opts.Target
	if t.Host == "" {
		return []string{"No IP address is assigned to this instance yet."}
	}
	user := t.User
	if user == "" {
		user = "root"
	}
	conn := fmt.Sprintf("ssh %s@%s", user, t.Host)

	lines := []string{"SSH connection string:", "  " + conn}
	if fp, ok := fingerprint(in.opts.AuthorizedKey); ok {
		lines = append(lines, "Key fingerprint: "+fp)
	}
	if in.opts.Clipboard != nil {
		if err := in.opts.Clipboard.Copy(conn); err != nil {
			log.Printf("[simterm] clipboard copy failed: %v", err)
		} else {
			lines = append(lines, "(copied to clipboard)")
		}
	}
	return lines
}

func fingerprint(authorizedKey string) (string, bool) {
	if strings.TrimSpace(authorizedKey) == "" {
		return "", false
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		log.Printf("[simterm] ignoring unparsable authorized key: %v", err)
		return "", false
	}
	return ssh.FingerprintSHA256(pub), true
}

func (in *Interpreter) runAction(ctx context.Context, a action) []string {
	ctrl := in.opts.Controller
	if ctrl == nil {
		return []string{"Instance management is not available from this console."}
	}
	name := in.opts.InstanceName
	if name == "" {
		name = in.opts.Target.Name
	}
	if name == "" {
		return []string{"This terminal is not bound to a managed instance."}
	}
	log.Printf("[simterm] %s requested for %s", a, logutil.SanitizeForLog(name))

	switch a {
	case actionStart:
		if err := ctrl.Start(ctx, name); err != nil {
			return actionFailed("start", name, err)
		}
		return []string{fmt.Sprintf("Start requested for %s.", name), "The instance may take a minute to come up."}

	case actionShutdown:
		if err := ctrl.Stop(ctx, name); err != nil {
			return actionFailed("shut down", name, err)
		}
		return []string{fmt.Sprintf("Shutdown requested for %s.", name)}

	case actionRestart:
		if err := ctrl.Restart(ctx, name); err != nil {
			return actionFailed("restart", name, err)
		}
		return []string{fmt.Sprintf("Restart requested for %s.", name), "Live connections will drop while it reboots."}

	case actionStatus:
		status, err := ctrl.Status(ctx, name)
		if err != nil {
			return actionFailed("get status of", name, err)
		}
		return []string{fmt.Sprintf("%s is %s.", name, status)}

	case actionSystemInfo:
		info, err := ctrl.Describe(ctx, name)
		if err != nil {
			return actionFailed("describe", name, err)
		}
		return systemInfoLines(info, in.opts.Target.Host)
	}
	return nil
}

func actionFailed(verb, name string, err error) []string {
	log.Printf("[simterm] failed to %s %s: %v", verb, logutil.SanitizeForLog(name), err)
	return []string{fmt.Sprintf("Error: failed to %s %s: %v", verb, name, err), ""}
}

func systemInfoLines(info instances.Info, host string) []string {
	addr := info.Address
	if addr == "" {
		addr = host
	}
	if addr == "" {
		addr = "none"
	}
	lines := []string{
		"Name:     " + info.Name,
		"Status:   " + info.Status,
		"Image:    " + info.Image,
		"Address:  " + addr,
	}
	if info.CPUs > 0 {
		lines = append(lines, fmt.Sprintf("CPUs:     %g", info.CPUs))
	}
	if info.MemoryBytes > 0 {
		lines = append(lines, "Memory:   "+units.BytesSize(float64(info.MemoryBytes)))
	}
	if !info.CreatedAt.IsZero() {
		lines = append(lines, "Created:  "+info.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return lines
}
