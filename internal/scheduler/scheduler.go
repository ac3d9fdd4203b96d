// Package scheduler runs recurring hot backups on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/config"
	"github.com/veymont/hotbackup/internal/hotbackup"
)

// BackupRunner runs one blocking backup attempt into destRoot.
type BackupRunner interface {
	Run(ctx context.Context, destRoot string) (*hotbackup.Result, error)
}

// destTimeFormat names the per-run destination directory.
const destTimeFormat = "20060102T150405Z"

// Scheduler triggers backups from cron expressions. Each run gets a fresh
// timestamped directory under the schedule's destination root; overlapping
// runs are arbitrated by the manager registry like any other concurrent
// attempts.
type Scheduler struct {
	cron   *cron.Cron
	runner BackupRunner
	logger zerolog.Logger
}

// New creates a scheduler.
func New(runner BackupRunner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger.With().Str("component", "backup_scheduler").Logger(),
	}
}

// Add registers one schedule.
func (s *Scheduler) Add(sched config.Schedule) error {
	_, err := s.cron.AddFunc(sched.Cron, func() {
		s.runOnce(sched)
	})
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", sched.Cron, err)
	}
	s.logger.Info().Str("cron", sched.Cron).Str("dest_root", sched.DestRoot).Msg("schedule registered")
	return nil
}

func (s *Scheduler) runOnce(sched config.Schedule) {
	dest := filepath.Join(sched.DestRoot, time.Now().UTC().Format(destTimeFormat))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		s.logger.Error().Err(err).Str("destination", dest).Msg("create scheduled backup destination")
		return
	}

	s.logger.Info().Str("destination", dest).Msg("starting scheduled backup")
	res, err := s.runner.Run(context.Background(), dest)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("destination", dest).Msg("scheduled backup failed to start")
	case !res.OK:
		s.logger.Error().Str("destination", dest).Msg("scheduled backup failed")
	default:
		s.logger.Info().Str("destination", dest).Msg("scheduled backup completed")
	}
}

// Start begins triggering schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops triggering new runs and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
