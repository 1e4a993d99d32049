package playerconf

import (
	"time"

	"github.com/wkmp/wkmp-ap/internal/audiodevice"
	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/decodepool"
	"github.com/wkmp/wkmp-ap/internal/engine"
	"github.com/wkmp/wkmp-ap/internal/mixer"
	"github.com/wkmp/wkmp-ap/internal/pstore"
	"github.com/wkmp/wkmp-ap/internal/queueassign"
	"github.com/wkmp/wkmp-ap/internal/validation"
)

// These methods are the composition root's path from a *Settings to each
// component's own Config/Option shape. cmd/wkmpap also reads
// WorkingSampleRate and ExportWAVPath directly, for mixer.New and the
// optional WAV capture.

// EngineConfig builds internal/engine.Config.
func (s *Settings) EngineConfig() engine.Config {
	return engine.Config{
		SampleRate:         s.WorkingSampleRate,
		CheckInterval:      time.Duration(s.MixerCheckIntervalMS) * time.Millisecond,
		DevicePollInterval: engine.DefaultDevicePollInterval,
		ResumeRampSamples:  s.DecoderResumeHysteresisSamples,
	}
}

// DeviceConfig builds internal/audiodevice.Config.
func (s *Settings) DeviceConfig() audiodevice.Config {
	return audiodevice.Config{
		DeviceName:           s.DeviceName,
		SampleRate:           uint32(s.WorkingSampleRate),
		Format:               audiodevice.FormatF32,
		BufferFrames:         uint32(s.AudioBufferSize),
		StagingBufferFrames:  s.OutputRingbufferSize,
		MixerCheckIntervalMS: s.MixerCheckIntervalMS,
	}
}

// MixerOptions builds the internal/mixer.Option list for mixer.New.
func (s *Settings) MixerOptions() []mixer.Option {
	return []mixer.Option{
		mixer.WithPauseDecay(s.PauseDecayFactor, s.PauseDecayFloor),
	}
}

// DecodePoolOptions builds the internal/decodepool.Option list for
// decodepool.New.
func (s *Settings) DecodePoolOptions() []decodepool.Option {
	return []decodepool.Option{
		decodepool.WithChunkSize(int(s.ChunkDurationMS) * int(s.WorkingSampleRate) / 1000),
		decodepool.WithWorkPeriod(time.Duration(s.DecodeWorkPeriodMS) * time.Millisecond),
		decodepool.WithWorkingRate(s.WorkingSampleRate),
	}
}

// BufferManagerOptions builds the internal/buffermanager.Option list for
// buffermanager.New.
func (s *Settings) BufferManagerOptions() []buffermanager.Option {
	return []buffermanager.Option{
		buffermanager.WithCapacityFrames(s.PlayoutRingbufferSize),
		buffermanager.WithThresholds(s.PlayoutRingbufferHeadroom, s.DecoderResumeHysteresisSamples),
	}
}

// QueueAssignOptions builds the internal/queueassign.Option list for
// queueassign.New.
func (s *Settings) QueueAssignOptions() []queueassign.Option {
	return []queueassign.Option{
		queueassign.WithMaxChains(s.MaximumDecodeStreams),
	}
}

// StoreConfig builds internal/pstore.Config.
func (s *Settings) StoreConfig() pstore.Config {
	return pstore.Config{
		Path:               s.Storage.Path,
		SlowQueryThreshold: time.Duration(s.Storage.SlowQueryThresholdMS) * time.Millisecond,
		Debug:              s.Storage.Debug,
	}
}

// ValidationConfig builds internal/validation.Config.
func (s *Settings) ValidationConfig() validation.Config {
	return validation.Config{
		Interval:        time.Duration(s.ValidationIntervalSecs) * time.Second,
		ToleranceFrames: s.ValidationToleranceSamples,
		Enabled:         s.ValidationEnabled,
	}
}
