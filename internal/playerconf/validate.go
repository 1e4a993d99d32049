package playerconf

import (
	"fmt"
	"strings"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// ValidationError collects every problem found in one Validate pass,
// mirroring the teacher's conf.ValidationError: a single enqueue or
// startup failure should report everything wrong at once, not just the
// first field checked.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// Validate checks Settings for internally-consistent values. It does not
// reach into the filesystem or device layer; callers validate those
// separately when they open them.
func (s *Settings) Validate() error {
	ve := ValidationError{}

	if s.VolumeLevel < 0 || s.VolumeLevel > 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("volume_level must be in [0,1], got %v", s.VolumeLevel))
	}
	switch s.WorkingSampleRate {
	case 44100, 48000, 96000:
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("working_sample_rate must be one of 44100/48000/96000, got %d", s.WorkingSampleRate))
	}
	if s.OutputRingbufferSize <= 0 {
		ve.Errors = append(ve.Errors, "output_ringbuffer_size must be positive")
	}
	if s.MaximumDecodeStreams <= 0 {
		ve.Errors = append(ve.Errors, "maximum_decode_streams must be positive")
	}
	if s.DecodeWorkPeriodMS <= 0 {
		ve.Errors = append(ve.Errors, "decode_work_period_ms must be positive")
	}
	if s.ChunkDurationMS <= 0 {
		ve.Errors = append(ve.Errors, "chunk_duration_ms must be positive")
	}
	if s.PlayoutRingbufferSize <= 0 {
		ve.Errors = append(ve.Errors, "playout_ringbuffer_size must be positive")
	}
	if s.PlayoutRingbufferHeadroom < 0 || int64(s.PlayoutRingbufferSize) <= s.PlayoutRingbufferHeadroom {
		ve.Errors = append(ve.Errors, "playout_ringbuffer_headroom must be non-negative and smaller than playout_ringbuffer_size")
	}
	if s.DecoderResumeHysteresisSamples < 0 {
		ve.Errors = append(ve.Errors, "decoder_resume_hysteresis_samples must be non-negative")
	}
	if s.MixerMinStartLevel < 0 {
		ve.Errors = append(ve.Errors, "mixer_min_start_level must be non-negative")
	}
	if s.PauseDecayFactor <= 0 || s.PauseDecayFactor >= 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("pause_decay_factor must be in (0,1), got %v", s.PauseDecayFactor))
	}
	if s.PauseDecayFloor < 0 {
		ve.Errors = append(ve.Errors, "pause_decay_floor must be non-negative")
	}
	if s.AudioBufferSize <= 0 {
		ve.Errors = append(ve.Errors, "audio_buffer_size must be positive")
	}
	if s.MixerCheckIntervalMS <= 0 {
		ve.Errors = append(ve.Errors, "mixer_check_interval_ms must be positive")
	}
	if s.GlobalCrossfadeTimeMS < 0 {
		ve.Errors = append(ve.Errors, "global_crossfade_time_ms must be non-negative")
	}
	switch model.FadeCurve(s.GlobalFadeCurve) {
	case model.FadeCurveLinear, model.FadeCurveExponential, model.FadeCurveLogarithmic,
		model.FadeCurveCosine, model.FadeCurveEqualPower:
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("global_fade_curve %q is not a recognized fade curve", s.GlobalFadeCurve))
	}
	if s.ValidationEnabled && s.ValidationIntervalSecs <= 0 {
		ve.Errors = append(ve.Errors, "validation_interval_secs must be positive when validation_enabled")
	}
	if s.ValidationToleranceSamples < 0 {
		ve.Errors = append(ve.Errors, "validation_tolerance_samples must be non-negative")
	}
	if s.Storage.Path == "" {
		ve.Errors = append(ve.Errors, "storage.path must not be empty")
	}

	if len(ve.Errors) > 0 {
		return perrors.New(ve).Category(perrors.CategoryValidation).
			Context("operation", "validate_settings").Build()
	}
	return nil
}
