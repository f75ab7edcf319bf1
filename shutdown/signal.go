package shutdown

import (
	"os"
	"sync"
	"syscall"

	"aiclock/core"
)

// SignalCounter implements "first signal is graceful, the next one forces".
// onForce runs once, when the count reaches forceAfter.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	first      os.Signal
	forceAfter int
	onForce    func(os.Signal)
}

// NewSignalCounter returns a counter that calls onForce on signal number
// forceAfter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func(os.Signal)) *SignalCounter {
	if forceAfter < 1 {
		forceAfter = 2
	}
	return &SignalCounter{
		forceAfter: forceAfter,
		onForce:    onForce,
	}
}

// Observe records sig and returns the new count.
func (s *SignalCounter) Observe(sig os.Signal) int {
	s.mu.Lock()
	s.count++
	count := s.count
	if count == 1 {
		s.first = sig
	}
	force := count == s.forceAfter && s.onForce != nil
	onForce := s.onForce
	s.mu.Unlock()

	if force {
		onForce(sig)
	}
	return count
}

// Count returns the current signal count.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ExitCode maps the first observed signal to a process exit code. It is
// ExitCodeSuccess when no signal arrived.
func (s *SignalCounter) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SignalExitCode(s.first)
}

// SignalExitCode follows the 128+signal convention for SIGINT and SIGTERM.
func SignalExitCode(sig os.Signal) int {
	switch sig {
	case nil:
		return core.ExitCodeSuccess
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}
