package prompt

import (
	"context"
	"math/rand"
	"strings"
	"testing"
)

func TestClassicSource_Deterministic(t *testing.T) {
	a := NewClassicSource(rand.New(rand.NewSource(42)))
	b := NewClassicSource(rand.New(rand.NewSource(42)))

	for i := 0; i < 5; i++ {
		pa, pb := a.Prompt(), b.Prompt()
		if pa != pb {
			t.Fatalf("prompt %d differs for the same seed:\n%q\n%q", i, pa, pb)
		}
	}
}

func TestClassicSource_Shape(t *testing.T) {
	s := NewClassicSource(rand.New(rand.NewSource(7)))
	starts := map[string]bool{}

	for i := 0; i < 60; i++ {
		p, d, err := s.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if d != 0 {
			t.Errorf("enhancement time = %v, want 0", d)
		}
		if !strings.HasSuffix(p, ClassicSuffix) {
			t.Errorf("prompt %q missing suffix", p)
		}
		switch {
		case strings.HasPrefix(p, "A realm where"):
			starts["story"] = true
		case strings.HasPrefix(p, "A in "):
			starts["environment"] = true
		default:
			starts["element"] = true
		}
	}
	if len(starts) != 3 {
		t.Errorf("saw structures %v, want all three", starts)
	}
}

func TestClassicSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := NewClassicSource(nil).Generate(ctx); err == nil {
		t.Error("Generate() with canceled context returned nil error")
	}
}
