package decodepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToStereoDuplicatesMono(t *testing.T) {
	t.Parallel()
	out := toStereo([]float32{0.25, -0.5}, 1)
	assert.Equal(t, []float32{0.25, 0.25, -0.5, -0.5}, out)
}

func TestToStereoPassesThroughStereo(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3, 0.4}
	assert.Equal(t, in, toStereo(in, 2))
}

func TestToStereoDownmixesQuad(t *testing.T) {
	t.Parallel()
	// One frame, 4 channels: even (0,2) -> left, odd (1,3) -> right.
	out := toStereo([]float32{1.0, 2.0, 3.0, 4.0}, 4)
	assert.InDeltaSlice(t, []float64{2.0, 3.0}, toFloat64(out), 1e-6)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
