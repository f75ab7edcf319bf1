package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"aiclock/core"
	"aiclock/logging"
)

// printBanner writes the startup configuration summary.
func printBanner(w io.Writer, cfg *core.Config) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgHiBlack)
	value := color.New(color.FgWhite)

	fmt.Fprintln(w)
	title.Fprintf(w, "━━━ AI Clock %s ━━━\n", version)

	row := func(name string, format string, args ...interface{}) {
		label.Fprintf(w, "  %-18s", name)
		value.Fprintf(w, format+"\n", args...)
	}
	row("Display", "%dx%d @ %d fps", cfg.Display.Width, cfg.Display.Height, cfg.Display.FPS)
	row("Render", "%dx%d, %d steps, guidance %.1f",
		cfg.Render.Width, cfg.Render.Height, cfg.Render.Generation.Steps, cfg.Render.Generation.GuidanceScale)
	row("Checkpoint", "%s", filepath.Base(cfg.Render.Checkpoint))
	row("ControlNet", "%s", filepath.Base(cfg.Render.ControlNet))
	row("Update interval", "%v (transition %v)",
		cfg.Animation.UpdateInterval(), cfg.Animation.TransitionDuration())
	row("Watchdog", "%v, backoff x%.1f after %d failures",
		cfg.Updater.WatchdogTimeout(), cfg.Updater.FailureBackoffMultiplier, cfg.Updater.MaxConsecutiveFailures)

	prompts := cfg.Prompts.Mode
	if cfg.Prompts.Mode == core.PromptModeAI {
		prompts = fmt.Sprintf("%s via %s (%s)", prompts, cfg.Prompts.LLM.Model, logging.RedactSensitiveData(cfg.Prompts.LLM.BaseURL))
	}
	row("Prompts", "%s", prompts)
	row("History", "%s", cfg.System.HistoryDBPath)
	row("Snapshots", "%s", cfg.System.SnapshotDir)
	fmt.Fprintln(w)
}

// printExit reports how the process is about to exit.
func printExit(w io.Writer, code int) {
	clr := color.New(color.FgGreen)
	if code != core.ExitCodeSuccess && !core.IsSignalExit(code) {
		clr = color.New(color.FgRed)
	}
	clr.Fprintf(w, "AI Clock stopped: %s (exit %d)\n", core.ExitCodeName(code), code)
}
