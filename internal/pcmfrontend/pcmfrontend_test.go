package pcmfrontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownmixMonoPassthroughForMono(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3}
	got := downmixMono(in, 1)
	assert.Equal(t, in, got)
}

func TestDownmixMonoAveragesStereo(t *testing.T) {
	t.Parallel()
	// Two frames: (1.0, -1.0) and (0.5, 0.5).
	in := []float32{1.0, -1.0, 0.5, 0.5}
	got := downmixMono(in, 2)
	assert.InDeltaSlice(t, []float64{0.0, 0.5}, toFloat64Slice(got), 1e-6)
}

func TestToFloat32ScalesByDivisor(t *testing.T) {
	t.Parallel()
	got := toFloat32([]int{16384, -32768}, 32768.0)
	assert.InDelta(t, 0.5, got[0], 1e-6)
	assert.InDelta(t, -1.0, got[1], 1e-6)
}

func TestDecodeInterleavedRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()
	_, err := DecodeInterleaved("song.mp3")
	assert.Error(t, err)
}

func toFloat64Slice(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
