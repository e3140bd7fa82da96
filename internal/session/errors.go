package session

import "errors"

// Protocol violations (spec.md §7) are fatal: surfaced to the caller and
// the connection is torn down.
var (
	ErrVersionMismatch           = errors.New("session: server version does not match the configured protocol version")
	ErrUnexpectedHandshakeOpcode = errors.New("session: handshake frame carried an unexpected opcode")
	ErrConnectionClosed          = errors.New("session: connection closed by peer")
)

// ErrNotConnected is returned by Send after Dispose.
var ErrNotConnected = errors.New("session: not connected")

// ErrMigrationFailed is returned when a server-reported migrationError
// field is non-zero, shared by loginflow's SelectCharacter and gameflow's
// Connect (spec.md §4.3, §4.4).
var ErrMigrationFailed = errors.New("session: server reported a migration failure")

// ErrTimeout is returned by a Waiter whose deadline elapsed before a
// matching packet arrived. It is recoverable: the connection stays live.
var ErrTimeout = errors.New("session: wait timed out")

// ErrCancelled is returned by a Waiter still pending when Dispose runs.
var ErrCancelled = errors.New("session: wait cancelled")
