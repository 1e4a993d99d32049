// Package validation periodically checks the decoder->buffer->mixer
// pipeline's sample-conservation invariant (spec.md §8 property 10): over
// any window, decoder pushes must match buffer writes and buffer reads must
// match mixer output, within a tolerance. Grounded on
// internal/audiocore/health_monitor.go's shape (Config struct, ticker-driven
// Start(ctx) loop, a check function run each tick) generalized from
// silence-detection to counter-conservation.
package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/wkmp/wkmp-ap/internal/logging"
)

// DecoderSource is satisfied by *internal/decodepool.Pool.
type DecoderSource interface {
	FramesPushed() int64
}

// BufferSource is satisfied by *internal/buffermanager.Manager.
type BufferSource interface {
	FramesWritten() int64
}

// MixerSource is satisfied by *internal/mixer.Mixer.
type MixerSource interface {
	FramesRead() int64
	FramesOutput() int64
}

// Sink receives conservation-violation notifications. Satisfied
// structurally by *internal/ptevents.Adapter.
type Sink interface {
	ValidationFailure(message string)
}

// Config configures a Checker. ToleranceFrames bounds the count's
// "≤ tolerance" half of spec.md §8 property 10; Interval is the check
// period.
type Config struct {
	Interval        time.Duration
	ToleranceFrames int64
	Enabled         bool
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ToleranceFrames <= 0 {
		c.ToleranceFrames = 4
	}
}

// Checker runs the periodic conservation check.
type Checker struct {
	cfg     Config
	decoder DecoderSource
	buffer  BufferSource
	mixer   MixerSource
	sink    Sink
	logger  *slog.Logger

	// consecutiveFailures counts consecutive failing checks, logged at WARN
	// for a transient blip and escalated to the Sink only once it has
	// persisted across backToBackThreshold checks, the way a single
	// glitchy tick (a chunk landing exactly at a check boundary) shouldn't
	// read as a pipeline bug.
	consecutiveFailures int
}

// backToBackThreshold is how many consecutive failing checks are required
// before a ValidationFailure event fires; a single mismatched tick is
// ordinary boundary noise between a push and a read landing on either side
// of the check, not a real leak.
const backToBackThreshold = 3

// New builds a Checker. decoder/buffer/mixer may be nil if that stage of
// the pipeline isn't wired yet (e.g. unit tests exercising only one leg);
// a nil source is simply skipped for that half of the invariant.
func New(cfg Config, decoder DecoderSource, buffer BufferSource, mixer MixerSource, sink Sink) *Checker {
	cfg.applyDefaults()
	return &Checker{
		cfg:     cfg,
		decoder: decoder,
		buffer:  buffer,
		mixer:   mixer,
		sink:    sink,
		logger:  logging.ForService("validation"),
	}
}

// Run blocks, checking every Interval until ctx is cancelled. A no-op if
// Enabled is false.
func (c *Checker) Run(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.check()
		case <-ctx.Done():
			return
		}
	}
}

// check runs one conservation pass. Each half of the invariant is skipped
// if its sources aren't wired.
func (c *Checker) check() {
	failed := false

	if c.decoder != nil && c.buffer != nil {
		pushed := c.decoder.FramesPushed()
		written := c.buffer.FramesWritten()
		diff := pushed - written
		if diff < 0 {
			diff = -diff
		}
		if diff > c.cfg.ToleranceFrames {
			c.logger.Warn("decoder/buffer frame count diverged",
				"decoder_frames_pushed", pushed, "buffer_frames_written", written, "diff", diff)
			failed = true
		}
	}

	if c.mixer != nil {
		// Ring drains happen inside the mixer (it reads rings directly,
		// bypassing the buffer manager), so "buffer_frames_read" and
		// "mixer_frames_output" are both exposed by MixerSource.
		read := c.mixer.FramesRead()
		output := c.mixer.FramesOutput()
		diff := read - output
		if diff < 0 {
			diff = -diff
		}
		if diff > c.cfg.ToleranceFrames {
			c.logger.Warn("buffer-read/mixer-output frame count diverged",
				"buffer_frames_read", read, "mixer_frames_output", output, "diff", diff)
			failed = true
		}
	}

	if failed {
		c.consecutiveFailures++
	} else {
		c.consecutiveFailures = 0
	}

	if c.consecutiveFailures >= backToBackThreshold && c.sink != nil {
		c.sink.ValidationFailure("pipeline conservation check failed for 3 consecutive intervals")
		c.consecutiveFailures = 0
	}
}
