package logging

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevel reads LOG_LEVEL-style variables. Unset or unknown values
// give defaultLevel.
func ParseLogLevel(envVarName string, defaultLevel zapcore.Level) zapcore.Level {
	return ParseLogLevelString(os.Getenv(envVarName), defaultLevel)
}

// ParseLogLevelString accepts zap level names plus "warning". The panic
// levels fall back to defaultLevel.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	switch name {
	case "":
		return defaultLevel
	case "warning":
		name = "warn"
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return defaultLevel
	}
	if level == zapcore.DPanicLevel || level == zapcore.PanicLevel {
		return defaultLevel
	}
	return level
}
