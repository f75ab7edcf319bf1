package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// JSON keys used in log output.
const (
	// FieldTimestamp is the ISO8601 entry time
	FieldTimestamp = "timestamp"

	// FieldLevel is debug, info, warn, error or fatal
	FieldLevel = "level"

	// FieldSource is the logger name, e.g. "background" or "sdruntime"
	FieldSource = "source"

	FieldMessage    = "message"
	FieldStacktrace = "stacktrace"
	FieldCaller     = "caller"
)

// NewEncoderConfig returns the JSON encoder config used for the log file
// and for the production console.
//
// The config uses:
//   - ISO8601 timestamps
//   - lowercase level names
//   - durations in seconds, matching the render-request sidecar
//   - short caller paths (package/file.go:line)
//
// Example:
//
//	enc := zapcore.NewJSONEncoder(NewEncoderConfig())
//	core := zapcore.NewCore(enc, NewFileWriter("aiclock.log"), zapcore.InfoLevel)
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       FieldTimestamp,
		LevelKey:      FieldLevel,
		NameKey:       FieldSource,
		CallerKey:     FieldCaller,
		MessageKey:    FieldMessage,
		StacktraceKey: FieldStacktrace,
		LineEnding:    zapcore.DefaultLineEnding,

		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewConsoleEncoderConfig is the development variant: colored capital
// levels, wall-clock times without the date and durations like "1.2s".
func NewConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := NewEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = shortTimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}
