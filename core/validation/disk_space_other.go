//go:build !(linux || darwin || freebsd || dragonfly || windows)

package validation

import "errors"

func getDiskSpace(path string) (total, free int64, err error) {
	return 0, 0, errors.New("disk space check not supported on this platform")
}
