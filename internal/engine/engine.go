// Package engine defines the contract for the external hot backup engine.
//
// The engine performs the actual file copying, checksumming and throttling.
// It reports progress and errors back to the caller through callbacks while
// a backup is running, and the poll callback doubles as the cancellation
// channel: returning a negative decision asks the engine to abort.
package engine

// Decision is the value an OnProgress callback returns to the engine.
// Anything below zero requests cancellation of the running backup.
type Decision int

const (
	// Continue tells the engine to keep going.
	Continue Decision = 0
	// Abort tells the engine to stop the backup as soon as possible.
	Abort Decision = -1
)

// Callbacks receives progress and error reports from a running backup.
// OnProgress is invoked repeatedly with a completion fraction in [0,1] and a
// free-text status message; OnError is invoked once per engine-level failure
// with a numeric code (an errno on filesystem problems) and a message.
type Callbacks interface {
	OnProgress(fraction float64, message string) Decision
	OnError(code int, message string)
}

// StatusOK is the engine return code for a successful backup.
const StatusOK = 0

// Engine is the consumed backup engine API.
type Engine interface {
	// CreateBackup copies the source directories into the destination
	// directories, invoking cb for progress and errors. sources and dests
	// must have equal length (1 or 2 entries). It blocks until the backup
	// finishes and returns the engine status code, StatusOK on success.
	CreateBackup(sources, dests []string, cb Callbacks) int

	// ThrottleBackup caps the copy rate of any in-progress backup to the
	// given number of bytes per second. Zero means unthrottled.
	ThrottleBackup(bytesPerSecond int64)
}
