package decodepool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/playout"
)

func TestCaptureFramesAccumulates(t *testing.T) {
	t.Parallel()
	c := NewCapture(44100)

	c.CaptureFrames([]playout.Frame{{L: 0.1, R: -0.1}})
	c.CaptureFrames([]playout.Frame{{L: 0.2, R: -0.2}, {L: 0.3, R: -0.3}})

	assert.Len(t, c.frames, 3)
}

func TestCaptureFramesIgnoresEmptyCalls(t *testing.T) {
	t.Parallel()
	c := NewCapture(44100)

	c.CaptureFrames(nil)
	c.CaptureFrames([]playout.Frame{})

	assert.Empty(t, c.frames)
}

func TestWriteWAVOnEmptyCaptureProducesNoError(t *testing.T) {
	t.Parallel()
	c := NewCapture(44100)
	path := filepath.Join(t.TempDir(), "empty.wav")

	require.NoError(t, c.WriteWAV(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0)) // header alone is non-zero
}

func TestWriteWAVClampsOutOfRangeSamples(t *testing.T) {
	t.Parallel()
	c := NewCapture(44100)
	c.CaptureFrames([]playout.Frame{
		{L: 2.0, R: -2.0}, // beyond full scale, must clamp rather than wrap
		{L: 0.5, R: -0.5},
	})
	path := filepath.Join(t.TempDir(), "clamped.wav")

	require.NoError(t, c.WriteWAV(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestClamp01(t *testing.T) {
	t.Parallel()
	assert.Equal(t, float32(1), clamp01(1.5))
	assert.Equal(t, float32(-1), clamp01(-1.5))
	assert.Equal(t, float32(0.25), clamp01(0.25))
}
