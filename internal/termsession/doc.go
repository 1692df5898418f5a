// Package termsession implements the client side of a remote terminal
// session: the connection state machine, the output assembler that turns
// protocol frames into scrollback lines, and the WebSocket transport.
//
// # Session Lifecycle
//
//  1. Created via [New] → status=[StatusIdle].
//  2. [Session.Start] dials immediately → [StatusConnecting]. A placeholder
//     line is shown and the init frame is sent before anything else.
//  3. A connected frame arrives → [StatusLive]. The placeholder is replaced by
//     the welcome banner and commands may be submitted.
//  4. The transport closes cleanly → [StatusClosed]; any transport error, or a
//     close before the handshake, → [StatusFailed]. Both are terminal: a new
//     Session must be created to retry.
//
// [Session.Close] tears the session down from any state. It is synchronous
// and idempotent, and closes the transport exactly once.
//
// # Liveness
//
// Only line_output/output frames move bytesReceived and lastActivityAt.
// Pong frames refresh a separate keep-alive timestamp so that the stale
// indicator derived by [Freshness] reflects real output.
//
// # Log Prefixes
//
// Sessions log at the [termsession] prefix.
package termsession
