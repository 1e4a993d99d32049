package mixer

import (
	"fmt"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Crossfade duration bounds, per spec.md §4.10 / SPEC_FULL.md §C.1 (ported
// from mixer.rs's MIN_CROSSFADE_MS/MAX_CROSSFADE_MS). A duration outside
// this range is rejected rather than silently clamped.
const (
	MinCrossfadeMS = 20.0
	MaxCrossfadeMS = 10000.0
)

// CrossfadePoints is the six-point crossfade timing model: sample offsets
// (relative to the crossfade's own start) bounding passage A's tail,
// passage B's fade-in, and their overlap region. Grounded on
// mixer.rs::CrossfadePoints::calculate.
type CrossfadePoints struct {
	StartA       int64
	FadeInStart  int64
	LeadInEnd    int64
	LeadOutStart int64
	FadeOutEnd   int64
	EndB         int64 // -1 means "continues indefinitely" (mirrors the Rust u64::MAX sentinel)
}

// CalculateCrossfadePoints derives a CrossfadePoints from fade-in/fade-out/
// overlap durations (ms) at sampleRate, validating both durations fall in
// [MinCrossfadeMS, MaxCrossfadeMS].
func CalculateCrossfadePoints(fadeInMS, fadeOutMS, overlapMS float64, sampleRate int64) (CrossfadePoints, error) {
	if fadeInMS < MinCrossfadeMS || fadeInMS > MaxCrossfadeMS {
		return CrossfadePoints{}, perrors.New(fmt.Errorf("fade-in duration %.1fms out of range [%.0f, %.0f]", fadeInMS, MinCrossfadeMS, MaxCrossfadeMS)).
			Category(perrors.CategoryMixer).Build()
	}
	if fadeOutMS < MinCrossfadeMS || fadeOutMS > MaxCrossfadeMS {
		return CrossfadePoints{}, perrors.New(fmt.Errorf("fade-out duration %.1fms out of range [%.0f, %.0f]", fadeOutMS, MinCrossfadeMS, MaxCrossfadeMS)).
			Category(perrors.CategoryMixer).Build()
	}

	fadeInSamples := msToSamples(fadeInMS, sampleRate)
	fadeOutSamples := msToSamples(fadeOutMS, sampleRate)
	overlapSamples := msToSamples(overlapMS, sampleRate)

	leadOutStart := fadeInSamples - overlapSamples
	if leadOutStart < 0 {
		leadOutStart = 0
	}

	return CrossfadePoints{
		StartA:       0,
		FadeInStart:  0,
		LeadInEnd:    fadeInSamples,
		LeadOutStart: leadOutStart,
		FadeOutEnd:   fadeInSamples + fadeOutSamples - overlapSamples,
		EndB:         -1,
	}, nil
}

func msToSamples(ms float64, sampleRate int64) int64 {
	return int64(ms * float64(sampleRate) / 1000.0)
}
