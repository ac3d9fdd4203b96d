package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/config"
	"github.com/veymont/hotbackup/internal/hotbackup"
)

type stubRunner struct {
	dests []string
	res   *hotbackup.Result
	err   error
}

func (r *stubRunner) Run(_ context.Context, destRoot string) (*hotbackup.Result, error) {
	r.dests = append(r.dests, destRoot)
	return r.res, r.err
}

func TestScheduler_Add(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"nightly", "0 2 * * *", false},
		{"descriptor", "@daily", false},
		{"empty", "", true},
		{"gibberish", "not a cron line", true},
		{"too many fields", "* * * * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubRunner{res: &hotbackup.Result{OK: true}}, zerolog.Nop())
			err := s.Add(config.Schedule{Cron: tt.cron, DestRoot: t.TempDir()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("creates timestamped destination", func(t *testing.T) {
		root := t.TempDir()
		runner := &stubRunner{res: &hotbackup.Result{OK: true}}
		s := New(runner, zerolog.Nop())

		s.runOnce(config.Schedule{Cron: "@daily", DestRoot: root})

		if len(runner.dests) != 1 {
			t.Fatalf("runner called %d times, want 1", len(runner.dests))
		}
		dest := runner.dests[0]
		if !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			t.Errorf("destination %q not under root %q", dest, root)
		}
		if info, err := os.Stat(dest); err != nil || !info.IsDir() {
			t.Errorf("destination directory not created: %v", err)
		}
		name := filepath.Base(dest)
		if len(name) != len(destTimeFormat) || !strings.HasSuffix(name, "Z") {
			t.Errorf("destination name %q does not look like a UTC timestamp", name)
		}
	})

	t.Run("runner failure does not panic", func(t *testing.T) {
		runner := &stubRunner{res: &hotbackup.Result{OK: false}}
		s := New(runner, zerolog.Nop())
		s.runOnce(config.Schedule{Cron: "@daily", DestRoot: t.TempDir()})
		if len(runner.dests) != 1 {
			t.Fatalf("runner called %d times, want 1", len(runner.dests))
		}
	})

	t.Run("unwritable root skips run", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("directory permissions are not enforced for root")
		}
		root := t.TempDir()
		if err := os.Chmod(root, 0o500); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

		runner := &stubRunner{res: &hotbackup.Result{OK: true}}
		s := New(runner, zerolog.Nop())
		s.runOnce(config.Schedule{Cron: "@daily", DestRoot: root})
		if len(runner.dests) != 0 {
			t.Fatal("runner should not run when destination creation fails")
		}
	})
}
