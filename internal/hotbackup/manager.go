package hotbackup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/engine"
)

// ErrNegativeThrottle is returned when a throttle rate below zero is given.
var ErrNegativeThrottle = errors.New("backup throttle rate cannot be negative")

// preparingPrefix marks the engine's first poll message. It carries no
// progress data; it is the signal that this attempt won the race (if any)
// and is now the active backup.
const preparingPrefix = "Preparing backup"

// Manager coordinates a single hot backup attempt. It resolves the source
// and destination directory layout, invokes the engine synchronously, and
// receives the engine's callbacks. A Manager is created per attempt and must
// not be reused.
//
// The engine invokes OnProgress and OnError from its own execution context
// while Start blocks; the error record and cancellation reason written there
// are read by Start only after the engine call returns.
type Manager struct {
	eng      engine.Engine
	registry *Registry
	dataDir  string
	logDir   string
	logger   zerolog.Logger

	progress *Progress
	errRec   ErrorRecord

	ctx          context.Context
	killedReason string
}

// NewManager creates a manager for one backup attempt. dataDir and logDir
// must be canonical absolute paths; logDir may be empty.
func NewManager(eng engine.Engine, registry *Registry, dataDir, logDir string, logger zerolog.Logger) *Manager {
	l := logger.With().Str("component", "backup_manager").Logger()
	return &Manager{
		eng:      eng,
		registry: registry,
		dataDir:  dataDir,
		logDir:   logDir,
		logger:   l,
		progress: NewProgress(l),
	}
}

// Start runs the backup into destRoot and blocks until the engine returns.
// Cancelling ctx aborts the backup at the next poll callback; the
// cancellation cause is surfaced in the result's Reason field.
//
// A non-nil error means the attempt could not be started at all. Once the
// engine has run, failures are reported through the result document instead.
func (m *Manager) Start(ctx context.Context, destRoot string) (*Result, error) {
	sources := ResolveSources(m.dataDir, m.logDir)
	dests, err := ResolveDestinations(destRoot, len(sources))
	if err != nil {
		return nil, fmt.Errorf("hot backup could not create backup subdirectories: %w", err)
	}

	m.ctx = ctx
	defer m.registry.ReleaseIfOwner(m)

	m.logger.Debug().Str("destination", destRoot).Strs("sources", sources).Msg("starting backup")

	status := m.eng.CreateBackup(sources, dests, m)
	ok := status == engine.StatusOK

	// Different engine versions are not entirely consistent about pairing a
	// failure status with an error callback; a mismatch is logged, not
	// escalated.
	if ok && !m.errRec.Empty() {
		m.logger.Warn().Msg("backup succeeded but reported an error")
	} else if !ok && m.errRec.Empty() {
		m.logger.Warn().Int("status", status).Msg("backup failed but didn't report an error")
	}

	result := &Result{OK: ok}
	if !ok {
		doc := m.errRec.Document()
		result.Error = &doc
	}
	if m.killedReason != "" {
		result.Reason = m.killedReason
	}
	return result, nil
}

// OnProgress is the engine's poll callback. It observes cancellation first,
// claims the active-backup slot on the "Preparing backup" message, and feeds
// everything else to the progress parser.
func (m *Manager) OnProgress(fraction float64, message string) engine.Decision {
	if m.ctx != nil && m.ctx.Err() != nil {
		m.killedReason = cancelReason(m.ctx)
		return engine.Abort
	}

	if strings.HasPrefix(message, preparingPrefix) {
		m.registry.TryClaim(m)
		return engine.Continue
	}

	m.logger.Debug().
		Str("percent", fmt.Sprintf("%6.2f%%", fraction*100)).
		Str("message", message).
		Msg("backup progress")

	m.progress.Parse(fraction, message)
	return engine.Continue
}

// OnError is the engine's error callback.
func (m *Manager) OnError(code int, message string) {
	m.logger.Error().Int("errno", code).Str("message", message).Msg("backup error")
	m.errRec.Record(code, message)
}

// Throttle forwards a copy-rate cap to the engine. It applies to any backup
// in progress, not only this manager's.
func (m *Manager) Throttle(bytesPerSecond int64) error {
	return throttle(m.eng, bytesPerSecond, m.logger)
}

// Status returns the active attempt's progress snapshot, which may belong to
// a different manager than this one.
func (m *Manager) Status() (*StatusDocument, error) {
	return m.registry.Status()
}

func throttle(eng engine.Engine, bytesPerSecond int64, logger zerolog.Logger) error {
	if bytesPerSecond < 0 {
		return ErrNegativeThrottle
	}
	logger.Debug().Int64("bytes_per_second", bytesPerSecond).Msg("throttling backup")
	eng.ThrottleBackup(bytesPerSecond)
	return nil
}

// cancelReason renders the interrupt cause for the result document.
func cancelReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return ctx.Err().Error()
}
