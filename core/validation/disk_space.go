package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// MinSnapshotFreeBytes is the free space below which the snapshot
// directory check warns. One snapshot is a few MB.
const MinSnapshotFreeBytes int64 = 512 * 1024 * 1024

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path        string
	Total       int64
	Free        int64
	Used        int64
	UsedPercent float64
}

// FreeFormatted returns Free as a human-readable size.
func (d *DiskSpaceInfo) FreeFormatted() string {
	return humanize.IBytes(uint64(d.Free))
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, humanize.IBytes(uint64(e.Required)), humanize.IBytes(uint64(e.Available)))
}

// GetDiskSpace reports the filesystem containing path. A missing path is
// resolved to its nearest existing parent.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if parent := filepath.Dir(path); parent != path {
				return GetDiskSpace(parent)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}
	return &DiskSpaceInfo{
		Path:        path,
		Total:       total,
		Free:        free,
		Used:        used,
		UsedPercent: usedPercent,
	}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when less than requiredBytes is
// free at path.
func CheckDiskSpace(path string, requiredBytes int64) (*DiskSpaceInfo, error) {
	info, err := GetDiskSpace(path)
	if err != nil {
		return nil, err
	}
	if info.Free < requiredBytes {
		return info, &DiskSpaceError{
			Path:      path,
			Required:  requiredBytes,
			Available: info.Free,
		}
	}
	return info, nil
}
