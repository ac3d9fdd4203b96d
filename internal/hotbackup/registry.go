package hotbackup

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoBackupRunning is returned by Status when no attempt holds the slot.
var ErrNoBackupRunning = errors.New("no backup running")

// Registry tracks the single active backup manager. It holds a reference for
// lookup only, never ownership: the slot is claimed by a manager's first
// "Preparing backup" poll message and cleared by that manager's own
// teardown.
//
// Lock discipline: the registry lock is never held while acquiring any
// manager's progress lock; Status copies the manager pointer under the
// registry lock and reads its progress after releasing it. This rules out
// lock-ordering cycles.
type Registry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	current *Manager
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "backup_registry").Logger(),
	}
}

// TryClaim records m as the active manager. If a different manager still
// occupies the slot it is overwritten anyway: the previous attempt may have
// finished without having torn down yet, which is a benign race when backups
// run in quick succession, not a reason to fail the new attempt.
func (r *Registry) TryClaim(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current != m {
		r.logger.Warn().Msg("a different backup manager is already registered; this should only happen when backups run in quick succession")
	}
	r.current = m
}

// ReleaseIfOwner clears the slot, but only if m is still the recorded
// holder. A slot reassigned to a newer attempt is left alone.
func (r *Registry) ReleaseIfOwner(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == m {
		r.current = nil
	}
}

// Status returns the active manager's progress snapshot, or
// ErrNoBackupRunning when the slot is empty.
func (r *Registry) Status() (*StatusDocument, error) {
	r.mu.Lock()
	m := r.current
	r.mu.Unlock()
	if m == nil {
		return nil, ErrNoBackupRunning
	}
	return m.progress.Document(), nil
}
