package decodepool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/model"
)

// writeTestWAV writes a silent 16-bit stereo WAV with the given frame count
// at 44.1kHz, long enough to force a decode pass that overruns a small ring.
func writeTestWAV(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passage.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: 44100, NumChannels: 2},
		Data:           make([]int, frames*2),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

// TestRunJobPushLoopConservesFramesAcrossRingOverrun exercises the push
// loop with a ring capacity small enough, and a headroom/chunk-size gap
// wide enough, to force a short PushSamples mid-passage: headroom (4410,
// the default) is below the default chunk size (8192), so the ring
// accepts only its remaining free frames on at least one push. The push
// loop must retry the unpushed remainder rather than skip it, and the
// decoder's accepted-frame counter must equal buffermanager's, or
// internal/validation's conservation check (spec.md §8 property 10) would
// flag a leak on every passage that overruns its ring mid-chunk.
func TestRunJobPushLoopConservesFramesAcrossRingOverrun(t *testing.T) {
	t.Parallel()

	const frames = 50000
	path := writeTestWAV(t, frames)

	buffers := buffermanager.New(buffermanager.WithCapacityFrames(20000))
	p := New(buffers)
	defer p.Shutdown()

	id := uuid.New()
	require.NoError(t, p.Submit(id, path, model.Passage{}, model.PriorityImmediate, true))

	// Drain the ring as playback would, so the decoder's pauses clear and
	// the whole passage eventually gets pushed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ring, ok := buffers.Ring(id)
		require.True(t, ok)
		if ring.IsExhausted() {
			break
		}
		ring.Drain(4096)
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for buffer to exhaust")
		}
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, p.FramesPushed(), buffers.FramesWritten(),
		"decoder's accepted-frame counter must match buffermanager's accepted count")
	assert.True(t, buffers.IsBufferExhausted(id))
}
