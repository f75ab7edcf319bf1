package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveDynamic_RoundTripThroughLoad(t *testing.T) {
	dir := t.TempDir()
	dynamicPath := filepath.Join(dir, "dynamic_settings.yaml")

	cfg := DefaultConfig()
	d := cfg.Dynamic()
	d.Render.Checkpoint = "models/ink.safetensors"
	d.Prompts.Mode = PromptModeClassic
	opacity := 120
	d.Clock.OverlayOpacity = &opacity

	if err := SaveDynamic(dynamicPath, d); err != nil {
		t.Fatalf("SaveDynamic() error: %v", err)
	}

	loaded, err := LoadConfig(filepath.Join(dir, "missing.yaml"), dynamicPath)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Render.Checkpoint != "models/ink.safetensors" {
		t.Errorf("Checkpoint = %q", loaded.Render.Checkpoint)
	}
	if loaded.Clock.OverlayOpacity != 120 {
		t.Errorf("OverlayOpacity = %d, want 120", loaded.Clock.OverlayOpacity)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the settings file in %s, found %d entries", dir, len(entries))
	}
}

func TestWithDynamic(t *testing.T) {
	cfg := DefaultConfig()
	useNumbers := true

	next, err := cfg.WithDynamic(DynamicSettings{
		Clock:  DynamicClock{UseNumbers: &useNumbers},
		Render: DynamicRender{Checkpoint: "models/other.safetensors"},
	})
	if err != nil {
		t.Fatalf("WithDynamic() error: %v", err)
	}
	if !next.Clock.UseNumbers || next.Render.Checkpoint != "models/other.safetensors" {
		t.Errorf("overlay not applied: %+v %+v", next.Clock, next.Render)
	}
	if cfg.Clock.UseNumbers || cfg.Render.Checkpoint == "models/other.safetensors" {
		t.Error("WithDynamic() mutated the receiver")
	}

	if _, err := cfg.WithDynamic(DynamicSettings{Clock: DynamicClock{DisplayMode: "sideways"}}); err == nil {
		t.Error("WithDynamic() with invalid mode should fail")
	}
}
