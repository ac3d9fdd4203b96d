package hotbackup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/engine"
)

// Attempt is one backup attempt's journal entry.
type Attempt struct {
	ID           uuid.UUID  `json:"id"`
	Destination  string     `json:"destination"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Success      *bool      `json:"success,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Errno        int        `json:"errno,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	BytesDone    int64      `json:"bytes_done"`
	FilesDone    int        `json:"files_done"`
}

// Running reports whether the attempt has finished yet.
func (a *Attempt) Running() bool {
	return a.FinishedAt == nil
}

// AttemptStore persists the backup attempt journal.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	UpdateAttempt(ctx context.Context, attempt *Attempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*Attempt, error)
	ListAttempts(ctx context.Context, limit int) ([]*Attempt, error)
}

// Preflight validates a destination before the engine is invoked, given the
// resolved source roots.
type Preflight func(destRoot string, sources []string) error

// Service is the daemon-facing entry point: it creates one manager per
// attempt, journals attempts, and exposes status and throttling for the
// admin surface.
type Service struct {
	eng       engine.Engine
	registry  *Registry
	store     AttemptStore // may be nil
	preflight Preflight    // may be nil
	dataDir   string
	logDir    string
	logger    zerolog.Logger
}

// ServiceOptions configures optional service collaborators.
type ServiceOptions struct {
	Store     AttemptStore
	Preflight Preflight
}

// NewService creates a backup service for the given directory layout.
func NewService(eng engine.Engine, registry *Registry, dataDir, logDir string, opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		eng:       eng,
		registry:  registry,
		store:     opts.Store,
		preflight: opts.Preflight,
		dataDir:   dataDir,
		logDir:    logDir,
		logger:    logger.With().Str("component", "backup_service").Logger(),
	}
}

// Run performs one backup attempt synchronously and journals it. The caller
// blocks until the engine returns.
func (s *Service) Run(ctx context.Context, destRoot string) (*Result, error) {
	attempt := &Attempt{
		ID:          uuid.New(),
		Destination: destRoot,
		StartedAt:   time.Now().UTC(),
	}
	res, m, err := s.run(ctx, destRoot, attempt)
	if m != nil {
		s.record(attempt, m, res, err)
	}
	return res, err
}

// Begin starts a backup attempt in the background and returns its journal
// entry immediately. Progress is available through Status while it runs.
func (s *Service) Begin(ctx context.Context, destRoot string) (*Attempt, error) {
	if s.preflight != nil {
		if err := s.preflight(destRoot, ResolveSources(s.dataDir, s.logDir)); err != nil {
			return nil, err
		}
	}

	attempt := &Attempt{
		ID:          uuid.New(),
		Destination: destRoot,
		StartedAt:   time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.CreateAttempt(ctx, attempt); err != nil {
			return nil, fmt.Errorf("journal backup attempt: %w", err)
		}
	}

	go func() {
		m := NewManager(s.eng, s.registry, s.dataDir, s.logDir, s.logger)
		res, err := m.Start(context.WithoutCancel(ctx), destRoot)
		s.record(attempt, m, res, err)
	}()

	return attempt, nil
}

func (s *Service) run(ctx context.Context, destRoot string, attempt *Attempt) (*Result, *Manager, error) {
	if s.preflight != nil {
		if err := s.preflight(destRoot, ResolveSources(s.dataDir, s.logDir)); err != nil {
			return nil, nil, err
		}
	}
	if s.store != nil {
		if err := s.store.CreateAttempt(ctx, attempt); err != nil {
			return nil, nil, fmt.Errorf("journal backup attempt: %w", err)
		}
	}

	m := NewManager(s.eng, s.registry, s.dataDir, s.logDir, s.logger)
	res, err := m.Start(ctx, destRoot)
	return res, m, err
}

// finish closes the journal entry for a synchronous attempt.
func (s *Service) finish(attempt *Attempt, res *Result, err error) {
	if s.store == nil {
		return
	}
	now := time.Now().UTC()
	attempt.FinishedAt = &now
	ok := err == nil && res != nil && res.OK
	attempt.Success = &ok
	if res != nil {
		if res.Error != nil {
			attempt.ErrorMessage = res.Error.Message
			attempt.Errno = res.Error.Errno
		}
		attempt.Reason = res.Reason
	} else if err != nil {
		attempt.ErrorMessage = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := s.store.UpdateAttempt(ctx, attempt); uerr != nil {
		s.logger.Error().Err(uerr).Stringer("attempt", attempt.ID).Msg("update backup attempt journal")
	}
}

// record closes the journal entry for a background attempt, folding in the
// final progress counters.
func (s *Service) record(attempt *Attempt, m *Manager, res *Result, err error) {
	doc := m.progress.Document()
	attempt.BytesDone = doc.BytesDone
	attempt.FilesDone = doc.Files.Done
	s.finish(attempt, res, err)

	switch {
	case err != nil:
		s.logger.Error().Err(err).Stringer("attempt", attempt.ID).Msg("backup attempt failed to start")
	case !res.OK:
		s.logger.Error().Stringer("attempt", attempt.ID).Msg("backup attempt failed")
	default:
		s.logger.Info().Stringer("attempt", attempt.ID).Int64("bytes", doc.BytesDone).Msg("backup attempt completed")
	}
}

// Status returns the active attempt's progress snapshot.
func (s *Service) Status() (*StatusDocument, error) {
	return s.registry.Status()
}

// Throttle caps the engine copy rate for any in-progress backup.
func (s *Service) Throttle(bytesPerSecond int64) error {
	return throttle(s.eng, bytesPerSecond, s.logger)
}

// Attempts lists the most recent journal entries.
func (s *Service) Attempts(ctx context.Context, limit int) ([]*Attempt, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListAttempts(ctx, limit)
}

// Attempt looks up one journal entry.
func (s *Service) Attempt(ctx context.Context, id uuid.UUID) (*Attempt, error) {
	if s.store == nil {
		return nil, errors.New("attempt journal is disabled")
	}
	return s.store.GetAttempt(ctx, id)
}
