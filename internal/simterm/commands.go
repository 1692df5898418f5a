package simterm

// kind tags a command table entry with the way it is evaluated.
type kind int

const (
	kindStatic kind = iota // fixed output lines
	kindHelp
	kindClear
	kindExit
	kindLive
	kindSSH
	kindAction // delegated to the instance controller
)

// action names an instance-management operation.
type action string

const (
	actionStart      action = "start"
	actionShutdown   action = "shutdown"
	actionRestart    action = "restart"
	actionStatus     action = "status"
	actionSystemInfo action = "system-info"
)

type command struct {
	kind    kind
	lines   []string
	action  action
	summary string // shown by help; empty hides the entry
}

// vocabulary maps normalized command text to its handler.
var vocabulary = map[string]command{
	"help":  {kind: kindHelp, summary: "Show this list"},
	"clear": {kind: kindClear, summary: "Clear the screen"},
	"exit":  {kind: kindExit, summary: "Close the terminal"},
	"live":  {kind: kindLive, summary: "Open a live shell on the instance"},
	"ssh":   {kind: kindSSH, summary: "Show the SSH connection string and copy it"},

	"pwd": {kind: kindStatic, lines: []string{"/root"}, summary: "Print the working directory"},
	"ls":  {kind: kindStatic, lines: []string{".bashrc  .ssh  app  backups"}, summary: "List files"},
	"ls -la": {kind: kindStatic, lines: []string{
		"total 24",
		"drwx------  5 root root 4096 Jan 12 09:14 .",
		"drwxr-xr-x 18 root root 4096 Jan  3 17:02 ..",
		"-rw-r--r--  1 root root  571 Jan  3 17:02 .bashrc",
		"drwx------  2 root root 4096 Jan 12 09:14 .ssh",
	}, summary: "List files with details"},

	"logs":        {kind: kindStatic, lines: syslogExcerpt, summary: "Recent system log"},
	"logs auth":   {kind: kindStatic, lines: authLogExcerpt, summary: "Recent SSH/auth log"},
	"logs kernel": {kind: kindStatic, lines: kernelLogExcerpt, summary: "Recent kernel messages"},
	"logs nginx":  {kind: kindStatic, lines: nginxLogExcerpt, summary: "Recent web server access log"},
	"dmesg":       {kind: kindStatic, lines: kernelLogExcerpt},

	"start":       {kind: kindAction, action: actionStart, summary: "Start the instance"},
	"shutdown":    {kind: kindAction, action: actionShutdown, summary: "Shut the instance down"},
	"restart":     {kind: kindAction, action: actionRestart, summary: "Restart the instance"},
	"status":      {kind: kindAction, action: actionStatus, summary: "Show the instance status"},
	"system-info": {kind: kindAction, action: actionSystemInfo, summary: "Show instance details"},
}

// helpOrder is the display order of the help listing.
var helpOrder = []string{
	"help", "clear", "exit", "live", "ssh",
	"pwd", "ls", "ls -la",
	"logs", "logs auth", "logs kernel", "logs nginx",
	"start", "shutdown", "restart", "status", "system-info",
}

// shellPrefixes are real shell commands users commonly try in simulated mode.
var shellPrefixes = []string{"sudo", "cat", "tail", "head", "grep"}

var syslogExcerpt = []string{
	"Jan 12 09:14:02 vps systemd[1]: Started Daily apt download activities.",
	"Jan 12 09:14:05 vps systemd[1]: Starting Cleanup of Temporary Directories...",
	"Jan 12 09:14:05 vps systemd[1]: systemd-tmpfiles-clean.service: Deactivated successfully.",
	"Jan 12 09:15:01 vps CRON[2211]: (root) CMD (command -v debian-sa1 > /dev/null && debian-sa1 1 1)",
	"Jan 12 09:17:44 vps systemd-resolved[412]: Clock change detected. Flushing caches.",
}

var authLogExcerpt = []string{
	"Jan 12 09:02:11 vps sshd[1984]: Accepted publickey for root from 203.0.113.24 port 51122 ssh2",
	"Jan 12 09:02:11 vps sshd[1984]: pam_unix(sshd:session): session opened for user root(uid=0)",
	"Jan 12 09:09:37 vps sshd[2090]: Invalid user admin from 198.51.100.7 port 40210",
	"Jan 12 09:09:37 vps sshd[2090]: Connection closed by invalid user admin 198.51.100.7 port 40210 [preauth]",
}

var kernelLogExcerpt = []string{
	"[    0.000000] Linux version 6.8.0-45-generic (buildd@lcy02-amd64-075)",
	"[    0.412233] virtio_net virtio1 ens3: renamed from eth0",
	"[    1.903511] EXT4-fs (vda1): mounted filesystem with ordered data mode.",
	"[    3.118204] audit: type=1400 audit(1736672052.112:2): apparmor=\"STATUS\"",
}

var nginxLogExcerpt = []string{
	`203.0.113.24 - - [12/Jan/2026:09:12:01 +0000] "GET / HTTP/1.1" 200 612 "-" "curl/8.5.0"`,
	`198.51.100.7 - - [12/Jan/2026:09:12:09 +0000] "GET /wp-login.php HTTP/1.1" 404 162 "-" "Mozilla/5.0"`,
	`203.0.113.24 - - [12/Jan/2026:09:13:44 +0000] "POST /api/health HTTP/1.1" 200 17 "-" "uptime-bot/2.1"`,
}
