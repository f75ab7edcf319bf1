package sdruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	data := []byte("not really a checkpoint")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	tests := []struct {
		name          string
		path          string
		expected      string
		wantNotFound  bool
		wantCorrupted bool
	}{
		{name: "match", path: path, expected: want},
		{name: "match upper case", path: path, expected: strings.ToUpper(want)},
		{name: "existence only", path: path, expected: ""},
		{name: "mismatch", path: path, expected: strings.Repeat("0", 64), wantCorrupted: true},
		{name: "missing file", path: filepath.Join(dir, "missing"), expected: want, wantNotFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChecksum(tt.path, tt.expected)
			if IsModelNotFound(err) != tt.wantNotFound {
				t.Errorf("IsModelNotFound(%v) = %v, want %v", err, !tt.wantNotFound, tt.wantNotFound)
			}
			if IsModelCorrupted(err) != tt.wantCorrupted {
				t.Errorf("IsModelCorrupted(%v) = %v, want %v", err, !tt.wantCorrupted, tt.wantCorrupted)
			}
			if !tt.wantNotFound && !tt.wantCorrupted && err != nil {
				t.Errorf("VerifyChecksum() error = %v", err)
			}
		})
	}
}

func TestCalculateChecksum_MissingFile(t *testing.T) {
	_, err := CalculateChecksum(filepath.Join(t.TempDir(), "missing"))
	if !IsModelNotFound(err) {
		t.Errorf("CalculateChecksum() error = %v, want ErrModelNotFound", err)
	}
}
