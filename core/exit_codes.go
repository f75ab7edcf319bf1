package core

// Process exit codes.
// Signal exits follow the Unix 128 + signal convention, so a service
// manager configured with Restart=on-failure can tell a requested stop
// from a crash.
const (
	// ExitCodeSuccess is a clean shutdown without a signal (exit code 0)
	ExitCodeSuccess = 0

	// ExitCodeError covers startup failures (missing model, failed
	// preflight) and shutdown handlers that returned errors
	ExitCodeError = 1

	ExitCodeConfig = 2 // configuration could not be resolved

	// ExitCodeSIGINT is termination by SIGINT (Ctrl+C)
	// Convention: 128 + 2 (SIGINT) = 130
	ExitCodeSIGINT = 130

	// ExitCodeSIGTERM is termination by SIGTERM
	// Convention: 128 + 15 (SIGTERM) = 143
	ExitCodeSIGTERM = 143
)

// ExitCodeName returns a human-readable name for an exit code, as printed
// on the "AI Clock stopped" line.
//
// Example:
//
//	ExitCodeName(ExitCodeSIGTERM) // "terminated (SIGTERM)"
//	ExitCodeName(42)              // "unknown"
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit reports whether code means the process was stopped by a signal.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
