package hotbackup

import (
	"sync"
	"syscall"
)

// ErrorRecord captures the engine's error callback for one attempt. The code
// and message are stored verbatim; no cause classification is attempted, the
// raw text is surfaced as-is.
type ErrorRecord struct {
	mu      sync.Mutex
	errno   int
	message string
	set     bool
}

// Record stores the engine-reported error. The first report wins; the engine
// is not expected to report twice, but a second report must not clobber the
// original failure.
func (e *ErrorRecord) Record(code int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.errno = code
	e.message = message
	e.set = true
}

// Empty reports whether any error has been recorded.
func (e *ErrorRecord) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.set
}

// Document renders the recorded error.
func (e *ErrorRecord) Document() ErrorDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ErrorDocument{
		Message:  e.message,
		Errno:    e.errno,
		Strerror: syscall.Errno(e.errno).Error(),
	}
}
