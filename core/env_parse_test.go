package core

import (
	"testing"
	"time"
)

func TestParseEnvHelpers(t *testing.T) {
	const key = "AICLOCK_TEST_ENV"

	t.Run("int", func(t *testing.T) {
		t.Setenv(key, " 42 ")
		if got := ParseIntEnv(key, 1); got != 42 {
			t.Errorf("ParseIntEnv() = %d, want 42", got)
		}
		t.Setenv(key, "forty")
		if got := ParseIntEnv(key, 1); got != 1 {
			t.Errorf("ParseIntEnv() with garbage = %d, want default", got)
		}
	})

	t.Run("float", func(t *testing.T) {
		t.Setenv(key, "2.5")
		if got := ParseFloat64Env(key, 1); got != 2.5 {
			t.Errorf("ParseFloat64Env() = %v, want 2.5", got)
		}
	})

	t.Run("bool", func(t *testing.T) {
		for _, v := range []string{"true", "1", "YES", "on"} {
			t.Setenv(key, v)
			if !ParseBoolEnv(key, false) {
				t.Errorf("ParseBoolEnv(%q) = false", v)
			}
		}
		t.Setenv(key, "maybe")
		if !ParseBoolEnv(key, true) {
			t.Error("ParseBoolEnv() with garbage should return default")
		}
	})

	t.Run("seconds", func(t *testing.T) {
		t.Setenv(key, "1.5")
		if got := ParseSecondsEnv(key, time.Second); got != 1500*time.Millisecond {
			t.Errorf("ParseSecondsEnv() = %v, want 1.5s", got)
		}
		t.Setenv(key, "-3")
		if got := ParseSecondsEnv(key, time.Second); got != time.Second {
			t.Errorf("ParseSecondsEnv() negative = %v, want default", got)
		}
	})

	t.Run("string", func(t *testing.T) {
		t.Setenv(key, "")
		if got := GetEnvOrDefault(key, "fallback"); got != "fallback" {
			t.Errorf("GetEnvOrDefault() = %q", got)
		}
	})
}
