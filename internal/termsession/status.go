package termsession

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusClosed     Status = "closed"
	StatusFailed     Status = "failed"
)

// String returns the string representation of a Status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for states a Session never leaves.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusFailed
}
