// Package validation runs the startup preflight: configuration, model
// files, writable directories and the optional prompt enhancer endpoint.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"aiclock/core"
	"aiclock/sdruntime"
)

// defaultOpenAIBaseURL is where go-openai points when only a key is set.
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite checks everything the clock needs before the model is
// loaded. Failed steps block startup, warnings do not.
type ValidationSuite struct {
	output       io.Writer
	connectivity *ConnectivityChecker
	showProgress bool
	failFast     bool
	verifyHash   bool
}

// NewValidationSuite creates a suite that prints progress to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		connectivity: NewConnectivityChecker(),
		showProgress: true,
		verifyHash:   true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithTimeout sets the timeout for network operations.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.connectivity.WithTimeout(timeout)
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithChecksum toggles hashing the checkpoint. Hashing a multi-GB file
// takes a while, so dev runs may turn it off.
func (s *ValidationSuite) WithChecksum(verify bool) *ValidationSuite {
	s.verifyHash = verify
	return s
}

type check struct {
	name string
	// onFail is StepFailed or StepWarning.
	onFail StepStatus
	// skip, when non-empty, is printed instead of running fn.
	skip string
	fn   func() (bool, string, error)
}

// Validate runs every check in order.
func (s *ValidationSuite) Validate(ctx context.Context, cfg *core.Config) SuiteResult {
	startTime := time.Now()
	if s.showProgress {
		s.printHeader("AI Clock Preflight")
	}

	var steps []ValidationStep
	for _, c := range s.checks(ctx, cfg) {
		var step ValidationStep
		if c.skip != "" {
			step = ValidationStep{Name: c.name, Status: StepSkipped, Message: c.skip}
			if s.showProgress {
				s.printStep(step)
			}
		} else {
			step = s.runStep(c.name, c.onFail, c.fn)
		}
		steps = append(steps, step)

		if step.Status == StepFailed && (s.failFast || c.name == "Configuration") {
			break
		}
	}

	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) checks(ctx context.Context, cfg *core.Config) []check {
	checks := []check{
		{name: "Configuration", onFail: StepFailed, fn: func() (bool, string, error) {
			if err := cfg.Validate(); err != nil {
				return false, "", err
			}
			return true, fmt.Sprintf("%dx%d render, %s prompts", cfg.Render.Width, cfg.Render.Height, cfg.Prompts.Mode), nil
		}},
		{name: "Checkpoint", onFail: StepFailed, fn: func() (bool, string, error) {
			return s.checkModel(cfg.Render.Checkpoint, cfg.Render.CheckpointSHA256)
		}},
		{name: "ControlNet", onFail: StepFailed, fn: func() (bool, string, error) {
			return s.checkModel(cfg.Render.ControlNet, "")
		}},
	}

	vae := check{name: "VAE", onFail: StepFailed, fn: func() (bool, string, error) {
		return s.checkModel(cfg.Render.VAE, "")
	}}
	if cfg.Render.VAE == "" {
		vae.skip = "using the checkpoint's VAE"
	}
	checks = append(checks, vae)

	checks = append(checks,
		check{name: "Snapshot Directory", onFail: StepFailed, fn: func() (bool, string, error) {
			if err := CheckDirWritable(cfg.System.SnapshotDir); err != nil {
				return false, "", err
			}
			return true, cfg.System.SnapshotDir, nil
		}},
		check{name: "History Database", onFail: StepFailed, fn: func() (bool, string, error) {
			dir := filepath.Dir(cfg.System.HistoryDBPath)
			if err := CheckDirWritable(dir); err != nil {
				return false, "", err
			}
			return true, cfg.System.HistoryDBPath, nil
		}},
		check{name: "Disk Space", onFail: StepWarning, fn: func() (bool, string, error) {
			info, err := CheckDiskSpace(cfg.System.SnapshotDir, MinSnapshotFreeBytes)
			if info == nil {
				return false, "", err
			}
			return err == nil, fmt.Sprintf("%s free (%.0f%% used)", info.FreeFormatted(), info.UsedPercent), err
		}},
	)

	llm := check{name: "Prompt Enhancer", onFail: StepFailed, fn: func() (bool, string, error) {
		base := cfg.Prompts.LLM.BaseURL
		if base == "" {
			base = defaultOpenAIBaseURL
		}
		res := s.connectivity.CheckLLMEndpoint(ctx, base, cfg.Prompts.LLM.APIKey)
		msg := res.Message
		if res.Latency > 0 {
			msg = fmt.Sprintf("%s (latency: %v)", msg, res.Latency.Round(time.Millisecond))
		}
		return res.Reachable, msg, res.Error
	}}
	switch {
	case cfg.Prompts.Mode != core.PromptModeAI:
		llm.skip = "classic prompts"
	case cfg.Prompts.LLM.FallbackOnError:
		llm.onFail = StepWarning
	}
	return append(checks, llm)
}

func (s *ValidationSuite) checkModel(path, sha string) (bool, string, error) {
	if err := CheckFileExists(path); err != nil {
		return false, "", err
	}
	expected := sha
	if !s.verifyHash {
		expected = ""
	}
	if err := sdruntime.VerifyChecksum(path, expected); err != nil {
		return false, "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, "", err
	}
	msg := fmt.Sprintf("%s (%s)", filepath.Base(path), humanize.IBytes(uint64(info.Size())))
	if expected != "" {
		msg += ", checksum ok"
	}
	return true, msg, nil
}

// runStep executes a validation step with timing and progress output.
// A failing fn yields onFail.
func (s *ValidationSuite) runStep(name string, onFail StepStatus, fn func() (bool, string, error)) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	passed, message, err := fn()
	step.Latency = time.Since(startTime)
	step.Message = message
	step.Error = err

	if passed && err == nil {
		step.Status = StepPassed
	} else {
		step.Status = onFail
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if (step.Status == StepFailed || step.Status == StepWarning) && step.Error != nil {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Preflight Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed, %d warnings, %v)",
			result.PassedSteps, result.TotalSteps, result.Warnings, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Preflight Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	status := "Passed"
	if !r.Success {
		status = "Failed"
	}
	fmt.Fprintf(&sb, "Preflight %s: %d/%d checks passed", status, r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
