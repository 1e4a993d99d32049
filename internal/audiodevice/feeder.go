package audiodevice

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/wkmp/wkmp-ap/internal/playout"
)

// Batch sizes per spec.md §4.11: aggressive while the output ring is
// under 50% full, steady-state between 50% and 75%, idle above 75%.
const (
	aggressiveBatchFrames = 512
	steadyBatchFrames     = 256
)

// frameSource produces mixed stereo frames on demand; satisfied by
// *internal/mixer.Mixer.
type frameSource interface {
	ProcessAudio(numFrames int) []playout.Frame
}

// Feeder periodically drains the mixer into the staging buffer at
// mixer_check_interval_ms cadence, batching according to the staging
// buffer's fill level.
type Feeder struct {
	mixer    frameSource
	staging  *stagingBuffer
	interval time.Duration
	logger   *slog.Logger

	scratch []byte // reused encode buffer, grown as needed
}

func newFeeder(mixer frameSource, staging *stagingBuffer, interval time.Duration, logger *slog.Logger) *Feeder {
	return &Feeder{
		mixer:    mixer,
		staging:  staging,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, refilling the staging buffer at interval cadence until ctx is
// cancelled. The cadence is paced by a rate.Limiter rather than a bare
// ticker: a limiter's token bucket lets one delayed tick catch up on the
// next call instead of silently dropping, which matters here since tick's
// own batch-size decision (aggressive/steady/idle) already adapts to how
// far behind the staging buffer has fallen.
func (f *Feeder) Run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(f.interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		f.tick()
	}
}

func (f *Feeder) tick() {
	capacity := f.staging.capacityFrames()
	if capacity <= 0 {
		return
	}
	occupancy := float64(f.staging.availableFrames()) / float64(capacity)

	var batch int
	switch {
	case occupancy >= 0.75:
		return // idle: leave the staging buffer alone
	case occupancy >= 0.50:
		batch = steadyBatchFrames
	default:
		batch = aggressiveBatchFrames
	}

	frames := f.mixer.ProcessAudio(batch)
	if len(frames) == 0 {
		return
	}

	needed := len(frames) * frameBytesF32
	if cap(f.scratch) < needed {
		f.scratch = make([]byte, needed)
	}
	f.scratch = f.scratch[:needed]
	for i, fr := range frames {
		base := i * frameBytesF32
		putF32(f.scratch[base:base+4], fr.L)
		putF32(f.scratch[base+4:base+8], fr.R)
	}

	if n := f.staging.push(f.scratch); n < needed && f.logger != nil {
		f.logger.Debug("staging buffer full, dropping mixer frames", "bytes_dropped", needed-n)
	}
}
