package sdruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// VerifyChecksum checks that the file at path hashes to expected (hex
// SHA-256, case-insensitive). An empty expected skips the hash but still
// requires the file to exist.
func VerifyChecksum(path, expected string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return fmt.Errorf("failed to access model file: %w", err)
	}
	if expected == "" {
		return nil
	}

	actual, err := CalculateChecksum(path)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrModelCorrupted, path, expected, actual)
	}
	return nil
}

// CalculateChecksum streams the file through SHA-256. Checkpoints are
// several GB, so the file is never read into memory whole.
func CalculateChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// IsModelCorrupted reports whether err is a checksum mismatch.
func IsModelCorrupted(err error) bool {
	return errors.Is(err, ErrModelCorrupted)
}

// IsModelNotFound reports whether err is a missing model file.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
