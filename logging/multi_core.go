package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCore builds the core every Logger writes through: a console core
// and a file core teed at the same level.
//
// Parameters:
//   - level: minimum level for both sinks
//   - consoleWriter: usually zapcore.Lock(os.Stdout); tests pass a buffer
//   - fileWriter: usually NewFileWriterWithConfig, so the file rotates
//   - isDev: chooses the console encoding
//
// The file side is always JSON. The console side is:
//   - development (isDev=true): colored text with short timestamps
//   - production (isDev=false): the same JSON as the file
//
// Example:
//
//	core := NewMultiCore(zapcore.InfoLevel,
//	    zapcore.Lock(os.Stdout),
//	    NewFileWriter("logs/aiclock.log"),
//	    false,
//	)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
