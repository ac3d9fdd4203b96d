// Package hotbackup coordinates live hot backups of the server's data and
// log directories. It drives the external backup engine through its callback
// protocol, translates the engine's free-text progress messages into a
// structured snapshot, and tracks the single active backup attempt.
package hotbackup

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// progressPrefix opens every progress message the engine emits.
const progressPrefix = "Backup progress "

// Progress is the structured snapshot of one running backup attempt.
//
// It is owned by a single Manager and mutated only through Parse. All fields
// are updated atomically under one lock, so readers never observe a
// half-updated group.
type Progress struct {
	logger zerolog.Logger

	mu            sync.Mutex
	fraction      float64
	bytesDone     int64
	filesDone     int
	filesTotal    int
	currentSource string
	currentDest   string
	currentDone   int64
	currentTotal  int64
}

// NewProgress creates an empty progress snapshot.
func NewProgress(logger zerolog.Logger) *Progress {
	return &Progress{
		logger: logger.With().Str("component", "backup_progress").Logger(),
	}
}

// parsed holds a fully validated field group before it is applied. A message
// either produces a complete parsed value or mutates nothing.
type parsed struct {
	bytesDone     int64
	filesDone     int
	filesTotal    int // 0 means keep the previous total
	setTotal      bool
	currentSource string
	currentDest   string
	currentDone   int64
	currentTotal  int64
}

// Parse interprets one engine progress message and updates the snapshot.
// Unrecognized or malformed messages are logged and otherwise ignored; the
// previous snapshot is retained verbatim. The engine's message wording is
// outside our control and may drift across versions, so every variant is
// matched defensively and discarded whole on any mismatch.
func (p *Progress) Parse(fraction float64, message string) {
	rest, ok := strings.CutPrefix(message, progressPrefix)
	if !ok {
		p.unexpected(message)
		return
	}

	bytesField, rest, ok := strings.Cut(rest, " bytes, ")
	if !ok {
		p.unexpected(message)
		return
	}
	bytesDone, err := strconv.ParseInt(bytesField, 10, 64)
	if err != nil {
		p.unexpected(message)
		return
	}

	filesField, rest, ok := strings.Cut(rest, " files.")
	if !ok {
		p.unexpected(message)
		return
	}
	filesDone, err := strconv.Atoi(filesField)
	if err != nil {
		p.unexpected(message)
		return
	}
	rest = strings.TrimLeft(rest, " \t")

	var v parsed
	switch {
	case strings.Contains(rest, "more files known of"):
		v, ok = parseListing(bytesDone, filesDone, rest)
		if ok && v.currentSource == "" {
			// Directory placeholder; nothing worth recording.
			return
		}
	case strings.Contains(rest, "Throttled: copied"):
		v, ok = parseThrottled(bytesDone, filesDone, rest)
	default:
		v, ok = parseCopy(bytesDone, filesDone, rest)
	}
	if !ok {
		p.unexpected(message)
		return
	}

	p.mu.Lock()
	p.fraction = fraction
	p.bytesDone = v.bytesDone
	p.filesDone = v.filesDone
	if v.setTotal {
		p.filesTotal = v.filesTotal
	}
	p.currentSource = v.currentSource
	p.currentDest = v.currentDest
	p.currentDone = v.currentDone
	p.currentTotal = v.currentTotal
	p.mu.Unlock()
}

// parseListing handles the file-listing phase:
//
//	Backup progress 475607 bytes, 13 files.  4 more files known of. Copying file /data/db/foo
//
// A path of "." stands for the directory itself and yields an empty
// currentSource, which Parse treats as a no-op.
func parseListing(bytesDone int64, filesDone int, rest string) (parsed, bool) {
	countField, pathField, ok := strings.Cut(rest, " more files known of. Copying file")
	if !ok {
		return parsed{}, false
	}
	remaining, err := strconv.Atoi(countField)
	if err != nil {
		return parsed{}, false
	}
	path := strings.TrimLeft(pathField, " \t")
	if path == "" {
		return parsed{}, false
	}
	if path == "." {
		return parsed{}, true
	}
	return parsed{
		bytesDone: bytesDone,
		// The reported number is the file currently being copied, which is
		// not done yet.
		filesDone:     filesDone - 1,
		filesTotal:    filesDone + remaining,
		setTotal:      true,
		currentSource: path,
	}, true
}

// parseThrottled handles the throttled copy phase:
//
//	Backup progress 12345 bytes, 3 files.  Throttled: copied 100/200 bytes of /src to /dst. Sleeping 0.50s for throttling.
func parseThrottled(bytesDone int64, filesDone int, rest string) (parsed, bool) {
	rest, ok := strings.CutPrefix(rest, "Throttled: copied ")
	if !ok {
		return parsed{}, false
	}
	currentDone, currentTotal, rest, ok := cutByteRange(rest, " bytes of ")
	if !ok {
		return parsed{}, false
	}
	paths, sleepField, ok := strings.Cut(rest, ". Sleeping ")
	if !ok {
		return parsed{}, false
	}
	src, dst, ok := strings.Cut(paths, " to ")
	if !ok || src == "" || dst == "" {
		return parsed{}, false
	}
	// The sleep duration is validated but not retained.
	secsField, ok := strings.CutSuffix(strings.TrimLeft(sleepField, " \t"), "s for throttling.")
	if !ok {
		return parsed{}, false
	}
	if _, err := strconv.ParseFloat(secsField, 64); err != nil {
		return parsed{}, false
	}
	return parsed{
		bytesDone:     bytesDone,
		filesDone:     filesDone - 1,
		currentSource: src,
		currentDest:   dst,
		currentDone:   currentDone,
		currentTotal:  currentTotal,
	}, true
}

// parseCopy handles the plain copy phase:
//
//	Backup progress 442839 bytes, 10 files.  Copying file: 0/32768 bytes done of /data/db/x to /data/backup/x.
func parseCopy(bytesDone int64, filesDone int, rest string) (parsed, bool) {
	rest, ok := strings.CutPrefix(rest, "Copying file: ")
	if !ok {
		return parsed{}, false
	}
	currentDone, currentTotal, rest, ok := cutByteRange(rest, " bytes done of ")
	if !ok {
		return parsed{}, false
	}
	paths, ok := strings.CutSuffix(rest, ".")
	if !ok {
		return parsed{}, false
	}
	src, dst, ok := strings.Cut(paths, " to ")
	if !ok || src == "" || dst == "" {
		return parsed{}, false
	}
	return parsed{
		bytesDone:     bytesDone,
		filesDone:     filesDone - 1,
		currentSource: src,
		currentDest:   dst,
		currentDone:   currentDone,
		currentTotal:  currentTotal,
	}, true
}

// cutByteRange parses a leading "<done>/<total><sep>" and returns the rest.
func cutByteRange(s, sep string) (done, total int64, rest string, ok bool) {
	pair, rest, found := strings.Cut(s, sep)
	if !found {
		return 0, 0, "", false
	}
	doneField, totalField, found := strings.Cut(pair, "/")
	if !found {
		return 0, 0, "", false
	}
	done, err := strconv.ParseInt(doneField, 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	total, err = strconv.ParseInt(totalField, 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	return done, total, strings.TrimLeft(rest, " \t"), true
}

func (p *Progress) unexpected(message string) {
	p.logger.Warn().Str("message", message).Msg("unexpected backup poll message")
}

// Document returns the snapshot as a status document.
func (p *Progress) Document() *StatusDocument {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc := &StatusDocument{
		Percent:   math.Round(p.fraction*10000) / 100,
		BytesDone: p.bytesDone,
		Files: FileCounts{
			Done:  p.filesDone,
			Total: p.filesTotal,
		},
	}
	if p.currentSource != "" {
		doc.Current = &CurrentFile{Source: p.currentSource}
		if p.currentDest != "" {
			doc.Current.Dest = p.currentDest
			doc.Current.Bytes = &ByteCounts{
				Done:  p.currentDone,
				Total: p.currentTotal,
			}
		}
	}
	return doc
}
