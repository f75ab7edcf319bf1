package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration file names, relative to the working directory.
const (
	DefaultConfigPath          = "config.yaml"
	DefaultDynamicSettingsPath = "dynamic_settings.yaml"
)

// Config is the resolved configuration snapshot. It is built once by
// LoadConfig and treated as read-only afterwards; components receive the
// sections they need by value.
type Config struct {
	Display   DisplayConfig   `yaml:"display"`
	Clock     ClockConfig     `yaml:"clock"`
	Render    RenderConfig    `yaml:"render"`
	Animation AnimationConfig `yaml:"animation"`
	Updater   UpdaterConfig   `yaml:"updater"`
	Prompts   PromptConfig    `yaml:"prompts"`
	System    SystemConfig    `yaml:"system"`
}

// DisplayConfig is the window the renderer targets.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// HandWidth is a tapered hand: Base at the pivot, Tip at the end.
type HandWidth struct {
	Base float64 `yaml:"base"`
	Tip  float64 `yaml:"tip"`
}

// ClockConfig describes the clock face geometry and overlay.
type ClockConfig struct {
	// OverlayOpacity is the alpha (0-255) applied to accent colors and
	// the on-screen overlay.
	OverlayOpacity int  `yaml:"overlay_opacity"`
	UseNumbers     bool `yaml:"use_numbers"`
	// DisplayMode is one of render_only, screen_only or both and decides
	// where hour markers are drawn.
	DisplayMode string `yaml:"display_mode"`

	RadiusMargin          int       `yaml:"radius_margin"`
	MarkerLength          int       `yaml:"marker_length"`
	MarkerWidth           int       `yaml:"marker_width"`
	HourHandLengthRatio   float64   `yaml:"hour_hand_length_ratio"`
	MinuteHandLengthRatio float64   `yaml:"minute_hand_length_ratio"`
	SecondHandLengthRatio float64   `yaml:"second_hand_length_ratio"`
	NumberedHandReduction float64   `yaml:"numbered_hand_reduction"`
	HourHandWidth         HandWidth `yaml:"hour_hand_width"`
	MinuteHandWidth       HandWidth `yaml:"minute_hand_width"`
	SecondHandWidth       HandWidth `yaml:"second_hand_width"`
}

// GenerationSettings are the sampler knobs passed through to the diffusion
// runtime and recorded with every render request.
type GenerationSettings struct {
	Steps                       int     `yaml:"num_inference_steps" json:"num_inference_steps"`
	GuidanceScale               float64 `yaml:"guidance_scale" json:"guidance_scale"`
	ControlNetConditioningScale float64 `yaml:"controlnet_conditioning_scale" json:"controlnet_conditioning_scale"`
	ControlGuidanceStart        float64 `yaml:"control_guidance_start" json:"control_guidance_start"`
	ControlGuidanceEnd          float64 `yaml:"control_guidance_end" json:"control_guidance_end"`
}

// RenderConfig covers the control image and the models it conditions.
type RenderConfig struct {
	Checkpoint string `yaml:"checkpoint"`
	ControlNet string `yaml:"controlnet"`
	VAE        string `yaml:"vae"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	// CheckpointSHA256, when set, is verified before the model is loaded.
	CheckpointSHA256 string `yaml:"checkpoint_sha256"`

	// BackgroundGray is the base gray of the control image; each frame
	// varies it by up to DarknessVariation in either direction.
	BackgroundGray    int     `yaml:"background_gray"`
	DarknessVariation float64 `yaml:"background_darkness_variation"`

	Generation GenerationSettings `yaml:"generation"`
}

// AnimationConfig holds the background cadence and crossfade length.
type AnimationConfig struct {
	UpdateIntervalSeconds     float64 `yaml:"background_update_interval"`
	TransitionDurationSeconds float64 `yaml:"transition_duration"`
}

// UpdateInterval is the base time between generation attempts.
func (a AnimationConfig) UpdateInterval() time.Duration {
	return secondsToDuration(a.UpdateIntervalSeconds)
}

// TransitionDuration is the crossfade length.
func (a AnimationConfig) TransitionDuration() time.Duration {
	return secondsToDuration(a.TransitionDurationSeconds)
}

// UpdaterConfig tunes failure handling of the background updater.
type UpdaterConfig struct {
	WatchdogTimeoutSeconds   float64 `yaml:"watchdog_timeout"`
	CacheCleanupInterval     int     `yaml:"cache_cleanup_interval"`
	MaxConsecutiveFailures   int     `yaml:"max_consecutive_failures"`
	FailureBackoffMultiplier float64 `yaml:"failure_backoff_multiplier"`
}

// WatchdogTimeout is how long a worker may run before it is abandoned.
func (u UpdaterConfig) WatchdogTimeout() time.Duration {
	return secondsToDuration(u.WatchdogTimeoutSeconds)
}

// LLMConfig points the prompt enhancer at an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	TimeoutSeconds  float64 `yaml:"timeout"`
	FallbackOnError bool    `yaml:"fallback_on_error"`

	// APIKey only comes from the environment.
	APIKey string `yaml:"-"`
}

// Timeout bounds a single enhancement request.
func (l LLMConfig) Timeout() time.Duration {
	return secondsToDuration(l.TimeoutSeconds)
}

// Prompt modes.
const (
	PromptModeClassic = "classic"
	PromptModeAI      = "ai"
)

// PromptConfig selects and configures the prompt source.
type PromptConfig struct {
	Mode           string    `yaml:"mode"`
	NegativePrompt string    `yaml:"negative_prompt"`
	LLM            LLMConfig `yaml:"llm"`
}

// SystemConfig is process-level plumbing.
type SystemConfig struct {
	HistoryDBPath string `yaml:"history_db"`
	SnapshotDir   string `yaml:"snapshot_dir"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	DevMode       bool   `yaml:"dev_mode"`
	ServiceName   string `yaml:"service_name"`

	// HistoryRetentionDays drops history rows older than this at startup.
	// Zero keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// DefaultConfig returns the built-in configuration. Files and environment
// are layered on top of it.
func DefaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{Width: 1280, Height: 720, FPS: 30},
		Clock: ClockConfig{
			OverlayOpacity:        75,
			DisplayMode:           "both",
			RadiusMargin:          20,
			MarkerLength:          30,
			MarkerWidth:           8,
			HourHandLengthRatio:   0.5,
			MinuteHandLengthRatio: 0.8,
			SecondHandLengthRatio: 0.9,
			NumberedHandReduction: 0.15,
			HourHandWidth:         HandWidth{Base: 24, Tip: 12},
			MinuteHandWidth:       HandWidth{Base: 16, Tip: 8},
			SecondHandWidth:       HandWidth{Base: 6, Tip: 2},
		},
		Render: RenderConfig{
			Checkpoint:        "models/checkpoint.safetensors",
			ControlNet:        "models/controlnet-canny.safetensors",
			Width:             512,
			Height:            512,
			BackgroundGray:    64,
			DarknessVariation: 0.2,
			Generation: GenerationSettings{
				Steps:                       20,
				GuidanceScale:               7.0,
				ControlNetConditioningScale: 0.9,
				ControlGuidanceStart:        0.0,
				ControlGuidanceEnd:          1.0,
			},
		},
		Animation: AnimationConfig{
			UpdateIntervalSeconds:     15,
			TransitionDurationSeconds: 5,
		},
		Updater: UpdaterConfig{
			WatchdogTimeoutSeconds:   120,
			CacheCleanupInterval:     50,
			MaxConsecutiveFailures:   3,
			FailureBackoffMultiplier: 3,
		},
		Prompts: PromptConfig{
			Mode:           PromptModeClassic,
			NegativePrompt: "blurry, low quality, text, watermark, signature, deformed",
			LLM: LLMConfig{
				BaseURL:         "http://127.0.0.1:1234/v1",
				Model:           "gpt-4o-mini",
				MaxTokens:       120,
				Temperature:     0.9,
				TimeoutSeconds:  20,
				FallbackOnError: true,
			},
		},
		System: SystemConfig{
			HistoryDBPath:        "data/history.db",
			HistoryRetentionDays: 30,
			SnapshotDir:          "snapshots",
			LogFile:              "aiclock.log",
			LogLevel:             "info",
			ServiceName:          "aiclock",
		},
	}
}

// LoadConfig resolves the configuration in one pass: defaults, then the
// base YAML file, then the dynamic settings file, then environment
// overrides. Either file may be missing. The result is validated.
func LoadConfig(basePath, dynamicPath string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{basePath, dynamicPath} {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayYAML decodes path on top of cfg. yaml.v3 leaves fields absent from
// the document untouched, which is what makes the layering work.
func overlayYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ErrConfigUnreadable(path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return ErrConfigUnreadable(path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	a := &cfg.Animation
	a.UpdateIntervalSeconds = ParseFloat64Env("CLOCK_UPDATE_INTERVAL_SECONDS", a.UpdateIntervalSeconds)
	a.TransitionDurationSeconds = ParseFloat64Env("CLOCK_TRANSITION_SECONDS", a.TransitionDurationSeconds)

	u := &cfg.Updater
	u.WatchdogTimeoutSeconds = ParseFloat64Env("CLOCK_WATCHDOG_TIMEOUT_SECONDS", u.WatchdogTimeoutSeconds)
	u.CacheCleanupInterval = ParseIntEnv("CLOCK_CACHE_CLEANUP_INTERVAL", u.CacheCleanupInterval)
	u.MaxConsecutiveFailures = ParseIntEnv("CLOCK_MAX_CONSECUTIVE_FAILURES", u.MaxConsecutiveFailures)
	u.FailureBackoffMultiplier = ParseFloat64Env("CLOCK_FAILURE_BACKOFF_MULTIPLIER", u.FailureBackoffMultiplier)

	r := &cfg.Render
	r.Checkpoint = GetEnvOrDefault("SD_CHECKPOINT_PATH", r.Checkpoint)
	r.ControlNet = GetEnvOrDefault("SD_CONTROLNET_PATH", r.ControlNet)
	r.Generation.Steps = ParseIntEnv("SD_INFERENCE_STEPS", r.Generation.Steps)
	r.Generation.GuidanceScale = ParseFloat64Env("SD_GUIDANCE_SCALE", r.Generation.GuidanceScale)

	p := &cfg.Prompts
	p.Mode = GetEnvOrDefault("PROMPT_MODE", p.Mode)
	p.LLM.BaseURL = GetEnvOrDefault("PROMPT_LLM_URL", p.LLM.BaseURL)
	p.LLM.Model = GetEnvOrDefault("PROMPT_LLM_MODEL", p.LLM.Model)
	p.LLM.APIKey = GetEnvOrDefault("OPENAI_API_KEY", p.LLM.APIKey)

	s := &cfg.System
	s.HistoryDBPath = GetEnvOrDefault("HISTORY_DB_PATH", s.HistoryDBPath)
	s.SnapshotDir = GetEnvOrDefault("SNAPSHOT_DIR", s.SnapshotDir)
	s.LogFile = GetEnvOrDefault("LOG_FILE", s.LogFile)
	s.LogLevel = GetEnvOrDefault("LOG_LEVEL", s.LogLevel)
	s.DevMode = ParseBoolEnv("DEV_MODE", s.DevMode)
}

// Generation resolution bounds shared with the diffusion runtime.
const (
	MinRenderSize      = 128
	MaxRenderSize      = 2048
	RenderSizeMultiple = 8
)

func renderSizeOK(v int) bool {
	return v >= MinRenderSize && v <= MaxRenderSize
}

// Validate checks every value the runtime depends on and returns the first
// problem as a *ConfigError.
func (c *Config) Validate() error {
	switch {
	case c.Animation.UpdateIntervalSeconds <= 0:
		return ErrInvalidConfig("animation.background_update_interval", "must be positive")
	case c.Animation.TransitionDurationSeconds <= 0:
		return ErrInvalidConfig("animation.transition_duration", "must be positive")
	case c.Updater.WatchdogTimeoutSeconds <= 0:
		return ErrInvalidConfig("updater.watchdog_timeout", "must be positive")
	case c.Updater.CacheCleanupInterval < 0:
		return ErrInvalidConfig("updater.cache_cleanup_interval", "must be zero (disabled) or positive")
	case c.Updater.MaxConsecutiveFailures < 1:
		return ErrInvalidConfig("updater.max_consecutive_failures", "must be at least 1")
	case c.Updater.FailureBackoffMultiplier < 1:
		return ErrInvalidConfig("updater.failure_backoff_multiplier", "must be at least 1")
	case c.Clock.OverlayOpacity < 0 || c.Clock.OverlayOpacity > 255:
		return ErrInvalidConfig("clock.overlay_opacity", fmt.Sprintf("must be 0-255, got %d", c.Clock.OverlayOpacity))
	case !renderSizeOK(c.Render.Width) || !renderSizeOK(c.Render.Height):
		return ErrInvalidConfig("render.width/height", fmt.Sprintf("must be %d-%d, got %dx%d",
			MinRenderSize, MaxRenderSize, c.Render.Width, c.Render.Height))
	case c.Render.Width%RenderSizeMultiple != 0 || c.Render.Height%RenderSizeMultiple != 0:
		return ErrInvalidConfig("render.width/height", fmt.Sprintf("must be divisible by %d", RenderSizeMultiple))
	case c.Render.BackgroundGray < 0 || c.Render.BackgroundGray > 255:
		return ErrInvalidConfig("render.background_gray", "must be 0-255")
	case c.Render.Checkpoint == "":
		return ErrMissingConfig("render.checkpoint")
	case c.Display.Width <= 0 || c.Display.Height <= 0:
		return ErrInvalidConfig("display.width/height", "must be positive")
	case c.Display.FPS <= 0:
		return ErrInvalidConfig("display.fps", "must be positive")
	case c.System.HistoryRetentionDays < 0:
		return ErrInvalidConfig("system.history_retention_days", "must be zero (keep all) or positive")
	}

	switch c.Clock.DisplayMode {
	case "render_only", "screen_only", "both":
	default:
		return ErrInvalidConfig("clock.display_mode", fmt.Sprintf("unknown mode %q", c.Clock.DisplayMode))
	}

	switch c.Prompts.Mode {
	case PromptModeClassic:
	case PromptModeAI:
		if c.Prompts.LLM.BaseURL == "" && c.Prompts.LLM.APIKey == "" {
			return ErrMissingConfig("prompts.llm.base_url or OPENAI_API_KEY")
		}
		if c.Prompts.LLM.Model == "" {
			return ErrMissingConfig("prompts.llm.model")
		}
	default:
		return ErrInvalidConfig("prompts.mode", fmt.Sprintf("unknown mode %q", c.Prompts.Mode))
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
