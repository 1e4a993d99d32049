// Package playerconf loads and validates the player's configuration.
//
// Unlike the teacher's internal/conf, which exposes a package-level viper
// singleton read by every subsystem (conf.GetSettings()), this package
// follows spec.md §9's "avoid globals for PARAMS" instruction: Load returns
// a *Settings that the composition root (cmd/wkmpap) passes by reference
// into every component constructor. viper itself lives only inside Load.
package playerconf

import (
	"bytes"
	_ "embed"
	"strings"

	"github.com/spf13/viper"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

//go:embed config.yaml
var defaultConfigYAML []byte

// Settings holds every recognized configuration key from spec.md §6,
// plus the ambient storage/logging/device settings a complete repo needs
// that the distilled spec leaves to "effect in parentheses" prose.
type Settings struct {
	// Runtime-mutable master gain (volume_level).
	VolumeLevel float64 `mapstructure:"volume_level"`

	// Restart-required; all timing converted to this rate.
	WorkingSampleRate int64 `mapstructure:"working_sample_rate"`

	// Output SPSC ring capacity, stereo frames.
	OutputRingbufferSize int `mapstructure:"output_ringbuffer_size"`

	// Chain-pool size (maximum_decode_streams).
	MaximumDecodeStreams int `mapstructure:"maximum_decode_streams"`

	// Decoder worker re-evaluation minimum period.
	DecodeWorkPeriodMS int64 `mapstructure:"decode_work_period_ms"`

	// Decoder yield granularity.
	ChunkDurationMS int64 `mapstructure:"chunk_duration_ms"`

	// Per-passage buffer capacity, stereo samples.
	PlayoutRingbufferSize int `mapstructure:"playout_ringbuffer_size"`

	// Pause threshold, samples.
	PlayoutRingbufferHeadroom int64 `mapstructure:"playout_ringbuffer_headroom"`

	// Resume threshold gap, samples.
	DecoderResumeHysteresisSamples int64 `mapstructure:"decoder_resume_hysteresis_samples"`

	// Samples buffered before Filling -> Ready.
	MixerMinStartLevel int64 `mapstructure:"mixer_min_start_level"`

	// Exponential pause fade tuning.
	PauseDecayFactor float64 `mapstructure:"pause_decay_factor"`
	PauseDecayFloor  float64 `mapstructure:"pause_decay_floor"`

	// Device callback frames per call.
	AudioBufferSize int `mapstructure:"audio_buffer_size"`

	// Mixer feeder period.
	MixerCheckIntervalMS int64 `mapstructure:"mixer_check_interval_ms"`

	// Defaults applied when a passage omits its own overrides.
	GlobalCrossfadeTimeMS int64  `mapstructure:"global_crossfade_time_ms"`
	GlobalFadeCurve       string `mapstructure:"global_fade_curve"`

	// Pipeline integrity checker (§8 property 10).
	ValidationEnabled          bool  `mapstructure:"validation_enabled"`
	ValidationIntervalSecs     int64 `mapstructure:"validation_interval_secs"`
	ValidationToleranceSamples int64 `mapstructure:"validation_tolerance_samples"`

	// Ambient: device selection, not named in spec.md's config key list
	// but required to open internal/audiodevice.Device at all.
	DeviceName string `mapstructure:"device_name"`

	// Ambient: optional debug/reference WAV capture of the mixer's final
	// output (SPEC_FULL.md §B's go-audio/wav "decodepool/export" wiring).
	// Empty disables capture entirely, at zero runtime cost.
	ExportWAVPath string `mapstructure:"export_wav_path"`

	// Ambient: storage.
	Storage StorageSettings `mapstructure:"storage"`

	// Ambient: per-module logging, one entry per component name recognized
	// by internal/perrors.RegisterComponent.
	Logging LoggingSettings `mapstructure:"logging"`
}

// StorageSettings configures internal/pstore.Open.
type StorageSettings struct {
	Path                 string `mapstructure:"path"`
	SlowQueryThresholdMS int64  `mapstructure:"slow_query_threshold_ms"`
	Debug                bool   `mapstructure:"debug"`
}

// LoggingSettings configures internal/logging's structured+console loggers
// plus the per-module file loggers the teacher calls "module logs".
type LoggingSettings struct {
	Level       string                  `mapstructure:"level"`
	ConsoleAlso bool                    `mapstructure:"console_also"`
	Modules     map[string]ModuleLogCfg `mapstructure:"modules"`
}

// ModuleLogCfg is one component's file-logger configuration, the
// renamed/generalized analogue of the teacher's per-module log block.
type ModuleLogCfg struct {
	Enabled     bool   `mapstructure:"enabled"`
	FilePath    string `mapstructure:"file_path"`
	Level       string `mapstructure:"level"`
	ConsoleAlso bool   `mapstructure:"console_also"`
}

// moduleNames lists every component that gets its own module-log default,
// the renamed analogue of the teacher's calls to setModuleLogDefaults for
// "analysis", "birdnet", "audio", etc.
var moduleNames = []string{
	"decoder", "mixer", "device", "queue", "engine",
	"storage", "boundary", "amplitude", "hash",
}

// Load reads defaults from the embedded config.yaml, overlays an optional
// config file at path (skipped if path is ""), overlays WKMP_*-prefixed
// environment variables, and validates the result.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(defaultConfigYAML)); err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryValidation).
			Context("operation", "read_default_config").Build()
	}

	setModuleLogDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, perrors.New(err).Category(perrors.CategoryValidation).
				Context("operation", "read_config_file").Context("path", path).Build()
		}
	}

	bindEnvVars(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryValidation).
			Context("operation", "unmarshal_config").Build()
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// setModuleLogDefaults mirrors the teacher's conf.setModuleLogDefaults,
// renamed and pointed at this repo's components instead of BirdNET-Go's
// analysis/birdnet/audio modules.
func setModuleLogDefaults(v *viper.Viper) {
	for _, module := range moduleNames {
		prefix := "logging.modules." + module
		v.SetDefault(prefix+".enabled", true)
		v.SetDefault(prefix+".file_path", "logs/"+module+".log")
		v.SetDefault(prefix+".level", "info")
		v.SetDefault(prefix+".console_also", false)
	}
}

// bindEnvVars binds every recognized key to a WKMP_-prefixed environment
// variable, the renamed analogue of the teacher's BIRDNET_-prefixed
// bindEnvVars. Nested keys use "_" in place of ".".
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("WKMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
