//go:build windows

package validation

import "golang.org/x/sys/windows"

// getDiskSpace reports the volume containing path. free is the space
// available to the calling user, honoring quotas.
func getDiskSpace(path string) (total, free int64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	var avail, size, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &size, &totalFree); err != nil {
		return 0, 0, err
	}
	return int64(size), int64(avail), nil
}
