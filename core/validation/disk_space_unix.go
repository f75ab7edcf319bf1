//go:build linux || darwin || freebsd || dragonfly

package validation

import "golang.org/x/sys/unix"

// getDiskSpace reports the filesystem containing path. free counts blocks
// available to unprivileged users, which is what the clock runs as.
func getDiskSpace(path string) (total, free int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := int64(st.Bsize)
	return int64(st.Blocks) * bsize, int64(st.Bavail) * bsize, nil
}
