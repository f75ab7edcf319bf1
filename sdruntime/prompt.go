package sdruntime

import (
	"fmt"
	"strings"
)

// ValidatePrompt rejects empty prompts, prompts with NUL bytes (they would
// truncate the C string) and prompts over MaxPromptLength bytes.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if strings.ContainsRune(prompt, '\x00') {
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidPrompt)
	}
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}
	return nil
}

// SanitizePrompt trims whitespace and collapses internal runs of it, which
// LLM-enhanced prompts tend to contain.
func SanitizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
