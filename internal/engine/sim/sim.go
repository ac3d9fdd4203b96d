// Package sim provides a simulated backup engine.
//
// It implements the engine contract with a plain file-copy loop and emits
// the same progress message grammar as the native hot backup engine. It is
// the default engine for deployments without the native binding and the
// driver used by integration tests.
package sim

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/engine"
)

// chunkSize is the copy granularity; progress is reported per chunk.
const chunkSize = 32 * 1024

// statusFailed is returned by CreateBackup when the backup did not complete.
const statusFailed = -1

// Engine is a file-copying engine.Engine implementation.
type Engine struct {
	logger zerolog.Logger

	mu       sync.Mutex
	throttle int64 // bytes per second, 0 means unthrottled
}

// New creates a simulated engine.
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "sim_engine").Logger(),
	}
}

// ThrottleBackup sets the copy rate cap for any in-progress backup.
func (e *Engine) ThrottleBackup(bytesPerSecond int64) {
	e.mu.Lock()
	e.throttle = bytesPerSecond
	e.mu.Unlock()
}

func (e *Engine) throttleRate() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.throttle
}

type sourceFile struct {
	src  string
	dst  string
	size int64
}

// CreateBackup copies every regular file under each source directory into
// the corresponding destination directory, reporting progress through cb.
func (e *Engine) CreateBackup(sources, dests []string, cb engine.Callbacks) int {
	if len(sources) == 0 || len(sources) != len(dests) {
		cb.OnError(int(syscall.EINVAL), "mismatched source and destination directories")
		return statusFailed
	}

	if cb.OnProgress(0, "Preparing backup") < 0 {
		cb.OnError(int(syscall.EINTR), "User aborted backup")
		return statusFailed
	}

	files, totalBytes, err := scan(sources, dests)
	if err != nil {
		cb.OnError(errnoOf(err), err.Error())
		return statusFailed
	}

	e.logger.Debug().Int("files", len(files)).Int64("bytes", totalBytes).Msg("scan complete")

	var bytesDone int64
	for i, f := range files {
		fileNo := i + 1
		remaining := len(files) - fileNo

		// The native engine announces the directory itself with a "."
		// placeholder before the first file; keep that quirk.
		if i == 0 {
			msg := fmt.Sprintf("Backup progress %d bytes, %d files.  %d more files known of. Copying file .",
				bytesDone, fileNo, remaining)
			if cb.OnProgress(fraction(bytesDone, totalBytes), msg) < 0 {
				cb.OnError(int(syscall.EINTR), "User aborted backup")
				return statusFailed
			}
		}

		msg := fmt.Sprintf("Backup progress %d bytes, %d files.  %d more files known of. Copying file %s",
			bytesDone, fileNo, remaining, f.src)
		if cb.OnProgress(fraction(bytesDone, totalBytes), msg) < 0 {
			cb.OnError(int(syscall.EINTR), "User aborted backup")
			return statusFailed
		}

		done, copyErr := e.copyFile(f, fileNo, &bytesDone, totalBytes, cb)
		if copyErr != nil {
			cb.OnError(errnoOf(copyErr), copyErr.Error())
			return statusFailed
		}
		if !done {
			cb.OnError(int(syscall.EINTR), "User aborted backup")
			return statusFailed
		}
	}

	return engine.StatusOK
}

// copyFile copies one file chunk by chunk, emitting a progress message after
// each chunk. It returns false without error when cb requested an abort.
func (e *Engine) copyFile(f sourceFile, fileNo int, bytesDone *int64, totalBytes int64, cb engine.Callbacks) (bool, error) {
	in, err := os.Open(f.src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(f.dst), 0o755); err != nil {
		return false, err
	}
	out, err := os.Create(f.dst)
	if err != nil {
		return false, err
	}
	defer out.Close()

	var fileDone int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return false, err
			}
			fileDone += int64(n)
			*bytesDone += int64(n)
		}

		sleep := e.sleepFor(int64(n))
		var msg string
		if sleep > 0 {
			msg = fmt.Sprintf("Backup progress %d bytes, %d files.  Throttled: copied %d/%d bytes of %s to %s. Sleeping %.2fs for throttling.",
				*bytesDone, fileNo, fileDone, f.size, f.src, f.dst, sleep.Seconds())
		} else {
			msg = fmt.Sprintf("Backup progress %d bytes, %d files.  Copying file: %d/%d bytes done of %s to %s.",
				*bytesDone, fileNo, fileDone, f.size, f.src, f.dst)
		}
		if cb.OnProgress(fraction(*bytesDone, totalBytes), msg) < 0 {
			return false, nil
		}
		// The throttled message precedes the sleep, as the native engine does.
		if sleep > 0 {
			time.Sleep(sleep)
		}

		if readErr == io.EOF {
			return true, nil
		}
		if readErr != nil {
			return false, readErr
		}
	}
}

// sleepFor returns how long the engine would sleep to keep n bytes under the
// configured rate, without sleeping.
func (e *Engine) sleepFor(n int64) time.Duration {
	rate := e.throttleRate()
	if rate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

// scan walks the source trees and pairs every regular file with its
// destination path.
func scan(sources, dests []string) ([]sourceFile, int64, error) {
	var files []sourceFile
	var total int64
	for i, src := range sources {
		dst := dests[i]
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			files = append(files, sourceFile{
				src:  path,
				dst:  filepath.Join(dst, rel),
				size: info.Size(),
			})
			total += info.Size()
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
	}
	return files, total, nil
}

func fraction(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// errnoOf extracts an errno from a filesystem error, defaulting to EIO.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(syscall.EIO)
}
