package audiodevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/playout"
)

func framesOf(n int, l, r float32) []playout.Frame {
	out := make([]playout.Frame, n)
	for i := range out {
		out[i] = playout.Frame{L: l, R: r}
	}
	return out
}

func TestFeederTickAggressiveWhenBelowHalfFull(t *testing.T) {
	src := &fakeFrameSource{frames: framesOf(1000, 1.0, 1.0)}
	staging := newStagingBuffer(8192)
	f := newFeeder(src, staging, 0, nil)

	f.tick()

	assert.Equal(t, aggressiveBatchFrames, staging.availableFrames())
}

func TestFeederTickIdleAboveThreeQuartersFull(t *testing.T) {
	src := &fakeFrameSource{frames: framesOf(1000, 1.0, 1.0)}
	staging := newStagingBuffer(1000)
	f := newFeeder(src, staging, 0, nil)

	fill := make([]byte, 800*frameBytesF32)
	staging.push(fill)
	before := staging.availableFrames()

	f.tick()

	assert.Equal(t, before, staging.availableFrames())
}

func TestFeederTickStopsWhenMixerStarves(t *testing.T) {
	src := &fakeFrameSource{frames: framesOf(10, 1.0, 1.0)}
	staging := newStagingBuffer(8192)
	f := newFeeder(src, staging, 0, nil)

	f.tick()
	require.Equal(t, 10, staging.availableFrames())

	f.tick() // mixer now empty; should be a no-op
	assert.Equal(t, 10, staging.availableFrames())
}
