package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aiclock/core"
	"aiclock/core/validation"
	"aiclock/logging"
	"aiclock/sdruntime"
	"aiclock/shutdown"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if HandleServiceCommand(os.Args) {
		return
	}
	if isService, err := RunAsService(); isService {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}
	os.Exit(run(runOptions{}))
}

// runOptions lets the service wrapper and tests drive run.
type runOptions struct {
	basePath    string
	dynamicPath string
	output      io.Writer

	// onManager is called once the shutdown manager exists, before the
	// model is loaded. The service wrapper keeps it to request a stop.
	onManager func(*shutdown.Manager)

	// exit replaces os.Exit for the forced exit on a second signal.
	exit func(int)
}

// run starts the clock and blocks until shutdown. It returns the process
// exit code.
func run(opts runOptions) int {
	out := opts.output
	if out == nil {
		out = os.Stdout
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(out, "Warning: .env file not loaded: %v\n", err)
	}

	basePath := opts.basePath
	if basePath == "" {
		basePath = core.GetEnvOrDefault("CLOCK_CONFIG", core.DefaultConfigPath)
	}
	dynamicPath := opts.dynamicPath
	if dynamicPath == "" {
		dynamicPath = core.GetEnvOrDefault("CLOCK_DYNAMIC_SETTINGS", core.DefaultDynamicSettingsPath)
	}

	cfg, err := core.LoadConfig(basePath, dynamicPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error [%s]: %v\n", core.GetErrorCode(err), err)
		return core.ExitCodeConfig
	}

	if dir := filepath.Dir(cfg.System.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
			return core.ExitCodeError
		}
	}
	defaultLevel := zapcore.InfoLevel
	if cfg.System.DevMode {
		defaultLevel = zapcore.DebugLevel
	}
	logger, err := logging.NewLoggerWithConfig(cfg.System.DevMode, cfg.System.LogFile,
		logging.ParseLogLevelString(cfg.System.LogLevel, defaultLevel), logging.DefaultFileWriterConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", syncErr)
		}
	}()

	printBanner(out, cfg)

	var managerOpts []shutdown.ManagerOption
	if opts.exit != nil {
		managerOpts = append(managerOpts, shutdown.WithExitFunc(opts.exit))
	}
	manager := shutdown.NewManager(logger, managerOpts...)
	if opts.onManager != nil {
		opts.onManager(manager)
	}
	manager.Start()

	if code := runPreflight(manager, cfg, logger, out); code != core.ExitCodeSuccess {
		_ = manager.Shutdown()
		return code
	}

	a, err := newApp(manager.Context(), cfg, logger, manager)
	if err != nil {
		switch {
		case sdruntime.IsModelNotFound(err):
			logger.Error("Startup failed: model file missing", zap.Error(err))
		case sdruntime.IsModelCorrupted(err):
			logger.Error("Startup failed: model checksum mismatch, re-download the checkpoint", zap.Error(err))
		default:
			logger.Error("Startup failed", zap.Error(err))
		}
		if shutdownErr := manager.Shutdown(); shutdownErr != nil {
			logger.Error("Shutdown after failed startup", zap.Error(shutdownErr))
		}
		return core.ExitCodeError
	}

	watcher, err := newSettingsWatcher(basePath, dynamicPath, a.applySettings, logger)
	if err != nil {
		logger.Warn("Dynamic settings will not be reloaded", zap.Error(err))
	} else {
		watcher.Start(manager.Context())
		manager.Register("settings", shutdown.PriorityController, watcher.Close)
	}

	a.run(manager.Context())

	if err := manager.Shutdown(); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	code := manager.ExitCode()
	printExit(out, code)
	return code
}

// runPreflight checks the config, model files and directories before the
// model is loaded.
func runPreflight(manager *shutdown.Manager, cfg *core.Config, logger *logging.Logger, out io.Writer) int {
	logger.Info("Starting preflight checks...")

	// Pipeline.Load verifies the checksum; hashing it twice doubles startup.
	result := validation.NewValidationSuite().
		WithOutput(out).
		WithChecksum(false).
		Validate(manager.Context(), cfg)

	for _, step := range result.Steps {
		switch step.Status {
		case validation.StepFailed:
			logger.Error("Preflight check failed",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error),
			)
		case validation.StepWarning:
			logger.Warn("Preflight warning",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error),
			)
		}
	}

	if !result.Success {
		logger.Error("Preflight failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		return core.ExitCodeError
	}

	logger.Info("Preflight passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
