package decodepool

import (
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/wkmp/wkmp-ap/internal/perrors"
	"github.com/wkmp/wkmp-ap/internal/playout"
)

// Capture buffers every mixer output frame in memory for an optional
// post-run reference/debug WAV export (SPEC_FULL.md §B). It exists purely
// for operators diagnosing a crossfade or fade-curve issue; nothing in
// the pipeline depends on it, and a composition root that never
// constructs one pays nothing for it (internal/mixer's CaptureSink is
// nil-checked per frame).
type Capture struct {
	mu         sync.Mutex
	sampleRate int
	frames     []playout.Frame
}

// NewCapture builds an empty Capture at sampleRate (the mixer's working
// rate, not necessarily the output device's rate).
func NewCapture(sampleRate int) *Capture {
	return &Capture{sampleRate: sampleRate}
}

// CaptureFrames appends frames to the in-memory buffer. Satisfies
// internal/mixer.CaptureSink.
func (c *Capture) CaptureFrames(frames []playout.Frame) {
	if len(frames) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frames...)
}

// WriteWAV writes everything captured so far to path as 16-bit stereo PCM,
// via github.com/go-audio/wav the same way internal/pcmfrontend reads WAV
// source files, just in the encode direction.
func (c *Capture) WriteWAV(path string) error {
	c.mu.Lock()
	frames := make([]playout.Frame, len(c.frames))
	copy(frames, c.frames)
	sampleRate := c.sampleRate
	c.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return perrors.FileError(err, path, 0)
	}
	defer f.Close()

	const bitDepth = 16
	const pcmFormat = 1 // WAVE_FORMAT_PCM

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 2, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 2},
		Data:           make([]int, len(frames)*2),
		SourceBitDepth: bitDepth,
	}
	const maxInt16 = 32767
	for i, fr := range frames {
		buf.Data[2*i] = int(clamp01(fr.L) * maxInt16)
		buf.Data[2*i+1] = int(clamp01(fr.R) * maxInt16)
	}

	if err := enc.Write(buf); err != nil {
		return perrors.New(err).Category(perrors.CategoryDecode).FileContext(path, 0).Build()
	}
	return enc.Close()
}

func clamp01(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
