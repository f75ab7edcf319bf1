package core

import (
	"errors"
	"fmt"
)

// ConfigError is a configuration problem with an instruction for fixing it.
type ConfigError struct {
	Code    string // stable code for programmatic handling
	Message string
	Action  string
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeConfigUnreadable = "CONFIG_FILE_UNREADABLE"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeMissingConfig    = "MISSING_CONFIG"
)

// ErrConfigUnreadable reports a config file that exists but cannot be read
// or parsed.
func ErrConfigUnreadable(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigUnreadable,
		Message: fmt.Sprintf("Cannot read configuration file %s: %v", path, cause),
		Action:  "Check the file permissions and YAML syntax",
	}
}

// ErrInvalidConfig reports an out-of-range or malformed value.
func ErrInvalidConfig(field, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid %s: %s", field, reason),
		Action:  fmt.Sprintf("Fix %s in config.yaml, dynamic_settings.yaml or the environment", field),
	}
}

// ErrMissingConfig reports a required value that was never set.
func ErrMissingConfig(field string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", field),
		Action:  fmt.Sprintf("Set %s in config.yaml or the environment", field),
	}
}

// IsConfigError unwraps err to a *ConfigError if it holds one.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code carried by err, or "".
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
