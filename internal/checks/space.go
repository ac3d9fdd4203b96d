// Package checks provides preflight validation for backup destinations.
package checks

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// EnsureFreeSpace verifies that the destination filesystem can absorb a copy
// of the source trees. minFreePct additionally requires that the filesystem
// keeps at least that percentage free after the copy; 0 only requires the
// copy to fit at all.
func EnsureFreeSpace(destRoot string, sources []string, minFreePct float64) error {
	var required uint64
	for _, src := range sources {
		size, err := treeSize(src)
		if err != nil {
			return fmt.Errorf("measure source %s: %w", src, err)
		}
		required += size
	}

	usage, err := disk.Usage(destRoot)
	if err != nil {
		return fmt.Errorf("stat destination filesystem: %w", err)
	}

	if required > usage.Free {
		return fmt.Errorf("destination %s has %d bytes free, backup needs %d", destRoot, usage.Free, required)
	}
	if minFreePct > 0 && usage.Total > 0 {
		freeAfter := float64(usage.Free-required) / float64(usage.Total) * 100
		if freeAfter < minFreePct {
			return fmt.Errorf("backup would leave %.1f%% free on %s, minimum is %.1f%%", freeAfter, destRoot, minFreePct)
		}
	}
	return nil
}

// treeSize sums the sizes of all regular files under root.
func treeSize(root string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		total += uint64(info.Size())
		return nil
	})
	return total, err
}
