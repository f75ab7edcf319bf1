package validation

import (
	"errors"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipUnsupportedDisk(t *testing.T) {
	t.Helper()
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "dragonfly", "windows":
	default:
		t.Skipf("disk space not reported on %s", runtime.GOOS)
	}
}

func TestGetDiskSpace(t *testing.T) {
	skipUnsupportedDisk(t)
	dir := t.TempDir()

	info, err := GetDiskSpace(dir)
	if err != nil {
		t.Fatalf("GetDiskSpace() error = %v", err)
	}
	if info.Total <= 0 || info.Free < 0 || info.Free > info.Total {
		t.Errorf("implausible sizes: %+v", info)
	}
	if info.UsedPercent < 0 || info.UsedPercent > 100 {
		t.Errorf("UsedPercent = %f", info.UsedPercent)
	}
	if info.FreeFormatted() == "" {
		t.Error("FreeFormatted() is empty")
	}
}

func TestGetDiskSpace_MissingPathUsesParent(t *testing.T) {
	skipUnsupportedDisk(t)
	dir := t.TempDir()

	info, err := GetDiskSpace(filepath.Join(dir, "snapshots", "today"))
	if err != nil {
		t.Fatalf("GetDiskSpace() error = %v", err)
	}
	if info.Path != dir {
		t.Errorf("Path = %s, want %s", info.Path, dir)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	skipUnsupportedDisk(t)
	dir := t.TempDir()

	if _, err := CheckDiskSpace(dir, 1); err != nil {
		t.Errorf("CheckDiskSpace(1 byte) error = %v", err)
	}

	info, err := CheckDiskSpace(dir, math.MaxInt64)
	var dsErr *DiskSpaceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("CheckDiskSpace(max) error = %v, want *DiskSpaceError", err)
	}
	if info == nil {
		t.Fatal("info should be returned with a DiskSpaceError")
	}
	if dsErr.Available != info.Free || !strings.Contains(dsErr.Error(), "insufficient disk space") {
		t.Errorf("unexpected error %+v: %v", dsErr, dsErr)
	}
}
