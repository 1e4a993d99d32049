// Package fade computes per-sample gain multipliers for a passage's
// fade-in/fade-out ramps and applies them to a stereo interleaved buffer.
package fade

import (
	"math"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/simd"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

// CurveIn evaluates a fade curve at normalized progress p in [0, 1] for the
// "in" direction (0 = silent, 1 = full volume).
func CurveIn(curve model.FadeCurve, p float64) float64 {
	switch curve {
	case model.FadeCurveExponential:
		return p * p
	case model.FadeCurveLogarithmic:
		// Mirror of exponential: steep initial rise, leveling off.
		return 1 - (1-p)*(1-p)
	case model.FadeCurveCosine:
		return (1 - math.Cos(math.Pi*p)) / 2
	case model.FadeCurveEqualPower:
		return math.Sin(math.Pi * p / 2)
	default: // linear
		return p
	}
}

// CurveOut evaluates a fade curve at normalized progress p in [0, 1] for
// the "out" direction (0 = full volume, 1 = silent).
func CurveOut(curve model.FadeCurve, p float64) float64 {
	switch curve {
	case model.FadeCurveExponential:
		return 1 - (1-p)*(1-p)
	case model.FadeCurveLogarithmic:
		return (1 - p) * (1 - p)
	case model.FadeCurveCosine:
		return (1 + math.Cos(math.Pi*p)) / 2
	case model.FadeCurveEqualPower:
		return math.Cos(math.Pi * p / 2)
	default: // linear
		return 1 - p
	}
}

// Spec describes one buffer's fade geometry in samples, relative to the
// start of the buffer being processed.
type Spec struct {
	FadeInLenSamples   int
	FadeOutStartSample int
	FadeOutLenSamples  int
	FadeInCurve        model.FadeCurve
	FadeOutCurve       model.FadeCurve
}

// Apply multiplies stereo interleaved samples in place according to spec.
// frameOffset is the index of samples[0]'s frame within the passage (for
// buffers processed in chunks rather than all at once).
func Apply(samples []float32, spec Spec, frameOffset int) {
	frames := len(samples) / 2
	useSIMD := cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.SSE2)

	for i := 0; i < frames; i++ {
		frameIndex := frameOffset + i
		m := 1.0

		if spec.FadeInLenSamples > 0 && frameIndex < spec.FadeInLenSamples {
			p := float64(frameIndex) / float64(spec.FadeInLenSamples)
			m *= CurveIn(spec.FadeInCurve, p)
		}
		if spec.FadeOutLenSamples > 0 && frameIndex >= spec.FadeOutStartSample {
			p := float64(frameIndex-spec.FadeOutStartSample) / float64(spec.FadeOutLenSamples)
			if p > 1 {
				p = 1
			}
			m *= CurveOut(spec.FadeOutCurve, p)
		}

		if m == 1.0 {
			continue
		}
		if useSIMD {
			simd.ScaleF32(samples[2*i:2*i+2], float32(m))
		} else {
			samples[2*i] *= float32(m)
			samples[2*i+1] *= float32(m)
		}
	}
}

// fallbackFadeOutSamples is the fade-out length used when a passage has
// neither a known End nor a discovered endpoint: the fade-out starts at the
// passage's FadeOutPoint and lasts this many frames.
const fallbackFadeOutSamples = 4410 // 0.1s at 44.1kHz

// DeriveSpec computes a Spec from a passage's tick-domain fade points, its
// resolved end (resolvedEndTicks, nil if entirely unknown), and the
// buffer's working sample rate, per spec.md §4.9.
func DeriveSpec(p model.Passage, resolvedEndTicks *tick.Tick, sampleRate int64) Spec {
	fadeInLen := tick.TicksToSamples(p.FadeInPoint-p.Start, sampleRate)
	fadeOutStart := tick.TicksToSamples(p.FadeOutPoint-p.Start, sampleRate)

	var fadeOutLen int64
	switch {
	case resolvedEndTicks != nil:
		endSamples := tick.TicksToSamples(*resolvedEndTicks-p.Start, sampleRate)
		fadeOutLen = endSamples - fadeOutStart
	default:
		fadeOutLen = fallbackFadeOutSamples
	}
	if fadeOutLen < 0 {
		fadeOutLen = 0
	}

	return Spec{
		FadeInLenSamples:   int(fadeInLen),
		FadeOutStartSample: int(fadeOutStart),
		FadeOutLenSamples:  int(fadeOutLen),
		FadeInCurve:        p.FadeInCurve,
		FadeOutCurve:       p.FadeOutCurve,
	}
}
