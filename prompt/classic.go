package prompt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	times = []string{
		"at dawn", "at dusk", "under moonlight", "in twilight", "at midnight",
		"during golden hour", "under a blood moon", "during solar eclipse",
		"in perpetual twilight", "under starlight", "at sunrise", "at sunset",
	}

	environments = []string{
		"in a crystalline cave", "in an ancient temple", "in a floating city",
		"in a submerged cathedral", "in a cosmic void", "in a quantum realm",
		"in a steampunk workshop", "in a celestial observatory",
		"in a forgotten library", "in an enchanted forest", "in a desert oasis",
		"in a volcanic sanctuary", "in an arctic cathedral", "in a cloud kingdom",
		"in a bioluminescent grove", "in a crystal canyon", "in a meteor crater",
		"in a temporal nexus", "in an astral plane", "in a dimensional rift",
	}

	mainElements = []string{
		"a grand clockwork mechanism", "an ancient timekeeper's sanctuary",
		"a cosmic observatory", "a temporal dimension", "a time-bending realm",
		"a celestial chronometer", "an ethereal timescape", "a time wizard's study",
		"a chronograph temple", "a temporal engine", "a reality-warping device",
		"an interdimensional timepiece", "a cosmic time portal", "a quantum clock tower",
		"an astrolabe sanctuary", "a temporal compass", "a time crystal formation",
		"a mechanical constellation", "a dimensional sundial", "an ethereal hourglass",
	}

	details = []string{
		"intricate gears floating in space", "swirling time spirals",
		"floating numerical constellations", "temporal energy streams",
		"crystalline chronographs", "orbiting time fragments",
		"cascading light particles", "flowing time rivers", "dancing auroras",
		"geometric light patterns", "holographic time glyphs", "levitating crystals",
		"temporal storm clouds", "quantum dust motes", "prismatic refractions",
		"nebulous time streams", "fractal patterns", "cosmic clockwork",
		"temporal butterflies", "chronometric fractals", "time-worn artifacts",
		"ethereal wisps", "dimensional echoes", "crystalline formations",
		"ancient runes", "floating mathematical equations", "astral projections",
	}

	atmospheres = []string{
		"serene and mysterious", "enigmatic and profound",
		"timeless and ethereal", "cosmic and surreal",
		"mystical and ancient", "otherworldly and transcendent",
		"dreamlike and floating", "metaphysical and abstract",
		"sacred and divine", "infinite and vast", "peaceful and harmonious",
		"magical and enchanted", "celestial and cosmic", "ethereal and ghostly",
	}

	qualities = []string{
		"ultra-detailed", "hyper-realistic", "HDR", "8k", "32k",
		"cinematic lighting", "dramatic atmosphere", "volumetric lighting",
		"ray tracing", "photorealistic", "studio quality", "professional photography",
		"octane render", "unreal engine", "dynamic range", "atmospheric perspective",
	}

	stories = []string{
		"where time stands still", "where past meets future",
		"where reality bends", "where dimensions converge",
		"where time flows backwards", "where eternity unfolds",
		"where moments crystallize", "where infinity loops",
		"where chronology fractures", "where time spirals endlessly",
	}
)

// ClassicSuffix ends every classic prompt.
const ClassicSuffix = ", trending on ArtStation"

// ClassicSource builds clock-themed prompts from word lists. It is safe for
// concurrent use.
type ClassicSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewClassicSource returns a source drawing from rng. A nil rng is seeded
// from the current time.
func NewClassicSource(rng *rand.Rand) *ClassicSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ClassicSource{rng: rng}
}

// Generate returns a fresh prompt and a zero enhancement time.
func (s *ClassicSource) Generate(ctx context.Context) (string, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	return s.Prompt(), 0, nil
}

// Prompt picks one of three sentence structures and fills it in.
func (s *ClassicSource) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p string
	switch s.rng.Intn(3) {
	case 0:
		p = fmt.Sprintf("A %s %s, featuring %s, %s, %s, %s, %s, %s, %s",
			s.pick(environments), s.pick(times), s.pick(mainElements),
			s.pick(details), s.pick(details), s.pick(stories),
			s.pick(atmospheres), s.pick(qualities), s.pick(qualities))
	case 1:
		p = fmt.Sprintf("%s %s %s, %s, %s, %s, %s, %s",
			s.pick(mainElements), s.pick(times), s.pick(environments),
			s.pick(details), s.pick(stories), s.pick(atmospheres),
			s.pick(qualities), s.pick(qualities))
	default:
		p = fmt.Sprintf("A realm %s, %s, with %s, %s, %s, %s, %s",
			s.pick(stories), s.pick(environments), s.pick(mainElements),
			s.pick(details), s.pick(atmospheres), s.pick(qualities), s.pick(qualities))
	}
	return p + ClassicSuffix
}

func (s *ClassicSource) pick(words []string) string {
	return words[s.rng.Intn(len(words))]
}
