package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PromptPreviewLength bounds how much of a prompt lands in a log line.
const PromptPreviewLength = 80

// GenerationAttempt describes one background generation for logging.
// It implements zapcore.ObjectMarshaler.
type GenerationAttempt struct {
	Epoch         uint64
	CorrelationID string
	Prompt        string
	Seed          int64
	Enhancement   time.Duration
	Duration      time.Duration
}

// MarshalLogObject encodes the attempt with durations in milliseconds.
func (a GenerationAttempt) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("epoch", a.Epoch)
	if a.CorrelationID != "" {
		enc.AddString("correlation_id", a.CorrelationID)
	}
	if a.Prompt != "" {
		enc.AddString("prompt", PromptPreview(a.Prompt))
	}
	if a.Seed != 0 {
		enc.AddInt64("seed", a.Seed)
	}
	enc.AddInt64("enhancement_ms", a.Enhancement.Milliseconds())
	enc.AddInt64("duration_ms", a.Duration.Milliseconds())
	return nil
}

// GenerationFields wraps an attempt as a single nested field.
//
//	logger.Info("background generated", logging.GenerationFields(attempt))
func GenerationFields(a GenerationAttempt) zap.Field {
	return zap.Object("generation", a)
}

// PromptPreview truncates prompt to PromptPreviewLength runes.
func PromptPreview(prompt string) string {
	r := []rune(prompt)
	if len(r) <= PromptPreviewLength {
		return prompt
	}
	return string(r[:PromptPreviewLength]) + "..."
}
