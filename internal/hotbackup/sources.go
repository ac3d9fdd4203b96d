package hotbackup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveSources computes the minimal set of source roots for a backup.
// dataDir and logDir must already be canonical absolute paths; logDir may be
// empty when the server keeps its log files under the data directory.
//
// If the two paths denote the same location, or one contains the other, a
// single root suffices. Otherwise both are returned, data directory first;
// that order is contractual and carries through to destination naming.
func ResolveSources(dataDir, logDir string) []string {
	if logDir == "" {
		return []string{dataDir}
	}
	if dataDir == logDir {
		return []string{dataDir}
	}
	if di, err := os.Stat(dataDir); err == nil {
		if li, err := os.Stat(logDir); err == nil && os.SameFile(di, li) {
			return []string{dataDir}
		}
	}

	if len(dataDir) < len(logDir) {
		if strings.HasPrefix(logDir, dataDir) {
			return []string{dataDir}
		}
	} else if strings.HasPrefix(dataDir, logDir) {
		// Data under the log directory would be odd, but stay consistent.
		return []string{logDir}
	}

	return []string{dataDir, logDir}
}

// ResolveDestinations maps the resolved sources onto destination paths under
// destRoot. A single source backs up into destRoot itself; two sources get
// fresh "data" and "log" subdirectories. Subdirectory creation failure
// aborts the attempt; already-created subdirectories are left in place.
func ResolveDestinations(destRoot string, sourceCount int) ([]string, error) {
	if sourceCount == 1 {
		return []string{destRoot}, nil
	}

	dataDest := filepath.Join(destRoot, "data")
	logDest := filepath.Join(destRoot, "log")
	for _, dir := range []string{dataDest, logDest} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup subdirectory %s: %w", dir, err)
		}
	}
	return []string{dataDest, logDest}, nil
}
