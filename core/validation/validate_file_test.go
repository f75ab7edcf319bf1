package validation

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckFileExists(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	testDir := filepath.Join(tmpDir, "testdir")
	if err := os.Mkdir(testDir, 0755); err != nil {
		t.Fatalf("Failed to create test dir: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "existing file",
			path:    testFile,
			wantErr: false,
		},
		{
			name:    "non-existent file",
			path:    filepath.Join(tmpDir, "nonexistent.txt"),
			wantErr: true,
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "directory instead of file",
			path:    testDir,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFileExists(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CheckFileExists(%q) expected error but got nil", tt.path)
					return
				}
				if _, ok := err.(*FileExistsError); !ok {
					t.Errorf("CheckFileExists(%q) expected *FileExistsError, got %T", tt.path, err)
				}
			} else if err != nil {
				t.Errorf("CheckFileExists(%q) unexpected error: %v", tt.path, err)
			}
		})
	}
}

func TestCheckDirWritable(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		if err := CheckDirWritable(dir); err != nil {
			t.Fatalf("CheckDirWritable() error = %v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("probe file left behind: %v", entries)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := CheckDirWritable(""); err == nil {
			t.Error("CheckDirWritable(\"\") expected error")
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := CheckDirWritable(file); err == nil {
			t.Error("CheckDirWritable(file) expected error")
		}
	})

	t.Run("read-only directory", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced here")
		}
		dir := t.TempDir()
		if err := os.Chmod(dir, 0555); err != nil {
			t.Fatal(err)
		}
		defer os.Chmod(dir, 0755)
		if err := CheckDirWritable(dir); err == nil {
			t.Error("CheckDirWritable(read-only) expected error")
		}
	})
}

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://127.0.0.1:1234/v1", false},
		{"https://api.openai.com/v1", false},
		{"  https://example.com  ", false},
		{"", true},
		{"ftp://example.com", true},
		{"http://", true},
		{"not a url", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateEndpointURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpointURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
