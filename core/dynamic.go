package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DynamicSettings is the subset of configuration the settings UI may change
// at runtime. It is persisted separately so the base file stays hand-edited.
// Nil and empty fields are not written and do not override the base layer.
type DynamicSettings struct {
	Clock   DynamicClock   `yaml:"clock,omitempty"`
	Render  DynamicRender  `yaml:"render,omitempty"`
	Prompts DynamicPrompts `yaml:"prompts,omitempty"`
}

type DynamicClock struct {
	UseNumbers     *bool  `yaml:"use_numbers,omitempty"`
	DisplayMode    string `yaml:"display_mode,omitempty"`
	OverlayOpacity *int   `yaml:"overlay_opacity,omitempty"`
}

type DynamicRender struct {
	Checkpoint string `yaml:"checkpoint,omitempty"`
}

type DynamicPrompts struct {
	Mode string `yaml:"mode,omitempty"`
}

// Dynamic extracts the current dynamic layer from c.
func (c *Config) Dynamic() DynamicSettings {
	useNumbers := c.Clock.UseNumbers
	opacity := c.Clock.OverlayOpacity
	return DynamicSettings{
		Clock: DynamicClock{
			UseNumbers:     &useNumbers,
			DisplayMode:    c.Clock.DisplayMode,
			OverlayOpacity: &opacity,
		},
		Render:  DynamicRender{Checkpoint: c.Render.Checkpoint},
		Prompts: DynamicPrompts{Mode: c.Prompts.Mode},
	}
}

// WithDynamic returns a validated copy of c with d applied. c is unchanged.
func (c *Config) WithDynamic(d DynamicSettings) (*Config, error) {
	next := *c
	if d.Clock.UseNumbers != nil {
		next.Clock.UseNumbers = *d.Clock.UseNumbers
	}
	if d.Clock.DisplayMode != "" {
		next.Clock.DisplayMode = d.Clock.DisplayMode
	}
	if d.Clock.OverlayOpacity != nil {
		next.Clock.OverlayOpacity = *d.Clock.OverlayOpacity
	}
	if d.Render.Checkpoint != "" {
		next.Render.Checkpoint = d.Render.Checkpoint
	}
	if d.Prompts.Mode != "" {
		next.Prompts.Mode = d.Prompts.Mode
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// SaveDynamic writes d to path atomically (temp file + rename).
func SaveDynamic(path string, d DynamicSettings) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode dynamic settings: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dynamic-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dynamic settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dynamic settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
