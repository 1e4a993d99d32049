package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentSamples(n int) []float32 {
	return make([]float32, n) // zero-valued = silence
}

func toneSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.5
		} else {
			out[i] = -0.5
		}
	}
	return out
}

func TestRMSOfSilenceIsZero(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, rms(silentSamples(100)))
}

func TestRMSOfToneAboveThreshold(t *testing.T) {
	t.Parallel()
	assert.Greater(t, rms(toneSamples(100)), silenceThreshold)
}

func TestSilenceRegionsRequiresMinimumDuration(t *testing.T) {
	t.Parallel()
	const sampleRate = 44100
	windowSize := int(float64(sampleRate) * windowDurationSeconds)

	// 1 second of silence windows: below the 2.0s minimum, must not register.
	windows := make([]float64, 10)
	regions := silenceRegions(windows, windowSize)
	assert.Empty(t, regions)
}

func TestSilenceRegionsAcceptsLongEnoughRun(t *testing.T) {
	t.Parallel()
	const sampleRate = 44100
	windowSize := int(float64(sampleRate) * windowDurationSeconds)

	// loud, then 3s silence (30 windows), then loud again.
	windows := make([]float64, 50)
	for i := range windows {
		windows[i] = 0.5
	}
	for i := 10; i < 40; i++ {
		windows[i] = 0.0
	}
	regions := silenceRegions(windows, windowSize)
	require.Len(t, regions, 1)
	assert.Equal(t, 10*windowSize, regions[0].startSample)
	assert.Equal(t, 40*windowSize, regions[0].endSample)
}

func TestBoundariesFromSilencesWholeFileFallback(t *testing.T) {
	t.Parallel()
	const sampleRate = 44100
	boundaries := boundariesFromSilences(nil, sampleRate*60, sampleRate)
	require.Len(t, boundaries, 1)
	assert.Equal(t, 0.5, boundaries[0].Confidence)
}

func TestBoundariesFromSilencesDropsShortPassages(t *testing.T) {
	t.Parallel()
	const sampleRate = 44100
	// A silence region splitting the file into two 5s passages: both are
	// below the 30s minimum passage duration, so no boundaries emit.
	silences := []sampleRange{{startSample: 5 * sampleRate, endSample: 7 * sampleRate}}
	boundaries := boundariesFromSilences(silences, 10*sampleRate, sampleRate)
	assert.Empty(t, boundaries)
}

func TestBoundariesFromSilencesEmitsQualifyingPassages(t *testing.T) {
	t.Parallel()
	const sampleRate = 44100
	// Two 40s passages separated by a silence region.
	silenceStart := 40 * sampleRate
	silenceEnd := silenceStart + 3*sampleRate
	total := silenceEnd + 40*sampleRate
	silences := []sampleRange{{startSample: silenceStart, endSample: silenceEnd}}

	boundaries := boundariesFromSilences(silences, total, sampleRate)
	require.Len(t, boundaries, 2)
	for _, b := range boundaries {
		assert.Equal(t, 0.8, b.Confidence)
	}
}

func TestDetectRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()
	d := NewDetector()
	_, err := d.Detect("nonexistent.ogg")
	require.Error(t, err)
}
