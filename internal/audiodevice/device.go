// Package audiodevice wraps malgo for stereo output playback: the mixer
// feeder stages mixed frames, and the hard-realtime device callback pulls
// from that staging buffer, applies volume, and converts to the
// negotiated device sample format. Grounded on
// internal/audiocore/sources/malgo/{malgo.go,device.go,converter.go}
// (same backend-selection/context/device lifecycle, mirrored to the
// output direction) and health_monitor.go/resource_manager.go for the
// recovery-attempt-counter shape (see internal/audiodevice/recovery.go).
package audiodevice

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Config configures a Device.
type Config struct {
	DeviceName           string // "" or "default" selects the system default
	SampleRate           uint32
	Format               SampleFormat
	BufferFrames         uint32 // device callback period, audio_buffer_size
	StagingBufferFrames  int    // output_ringbuffer_size
	MixerCheckIntervalMS int64  // mixer feeder refill period, mixer_check_interval_ms
}

// Device owns a malgo playback context/device, the staging buffer between
// the mixer feeder and the callback, and the recovery state machine.
type Device struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	staging  *stagingBuffer
	feeder   *Feeder
	recovery *recovery

	volume atomic.Value // float64

	feederCancel context.CancelFunc
}

// New constructs a Device bound to mixer (the frame source) but does not
// yet open the underlying hardware device; call Start for that.
func New(mixer frameSource, cfg Config, sink HealthSink) *Device {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = 1024
	}
	if cfg.StagingBufferFrames == 0 {
		cfg.StagingBufferFrames = 8192
	}
	if cfg.MixerCheckIntervalMS == 0 {
		cfg.MixerCheckIntervalMS = 10
	}

	d := &Device{
		cfg:     cfg,
		logger:  logging.ForService("audiodevice"),
		staging: newStagingBuffer(cfg.StagingBufferFrames),
	}
	d.volume.Store(1.0)
	d.recovery = newRecovery(d, sink, d.logger)
	interval := time.Duration(cfg.MixerCheckIntervalMS) * time.Millisecond
	d.feeder = newFeeder(mixer, d.staging, interval, d.logger)
	return d
}

// SetVolume sets the process-wide master gain (0.0-1.0, clamped), applied
// per-sample in the device callback.
func (d *Device) SetVolume(volume float64) {
	d.volume.Store(clampVolume(volume))
}

// Volume returns the current master gain.
func (d *Device) Volume() float64 {
	return d.volume.Load().(float64)
}

// Unhealthy reports whether the device callback has flagged a failure
// pending recovery.
func (d *Device) Unhealthy() bool { return d.recovery.Unhealthy() }

// FellBack reports whether recovery has already given up on the
// originally configured device and is running against the system default.
func (d *Device) FellBack() bool { return d.recovery.FellBack() }

// Poll drives one recovery attempt if a failure is pending. Intended to
// be called periodically by the engine's command loop, per spec.md
// §4.11/§5's "the engine polls this flag" contract.
func (d *Device) Poll() { d.recovery.attempt() }

// Start opens the malgo playback device and begins the mixer feeder.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.openLocked(d.cfg.DeviceName); err != nil {
		return err
	}

	feederCtx, cancel := context.WithCancel(ctx)
	d.feederCancel = cancel
	go d.feeder.Run(feederCtx)
	return nil
}

// Stop tears down the feeder and the malgo device.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.feederCancel != nil {
		d.feederCancel()
		d.feederCancel = nil
	}
	return d.closeLocked()
}

func (d *Device) openLocked(deviceName string) error {
	backend := backendForPlatform()
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryDevice).Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Channels = 2
	deviceConfig.Playback.Format = malgoFormat(d.cfg.Format)
	deviceConfig.SampleRate = d.cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = uint32(d.cfg.BufferFrames)

	if info, ok := resolvePlaybackDevice(malgoCtx, deviceName); ok {
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return perrors.New(err).Category(perrors.CategoryDevice).Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return perrors.New(err).Category(perrors.CategoryDevice).Build()
	}

	d.ctx = malgoCtx
	d.device = device
	return nil
}

func (d *Device) closeLocked() error {
	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx = nil
	}
	return nil
}

// rebuild satisfies deviceOps: reopen on the same configured device.
func (d *Device) rebuild() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.closeLocked()
	return d.openLocked(d.cfg.DeviceName)
}

// fallbackToDefault satisfies deviceOps: reopen on the system default.
func (d *Device) fallbackToDefault() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.closeLocked()
	return d.openLocked("default")
}

// onData is the hard-realtime callback: no allocation, no blocking, no
// logging, per spec.md §4.11.
func (d *Device) onData(pOutputSamples, _ []byte, frameCount uint32) {
	format := d.cfg.Format.wireFormat()
	bpf := format.BytesPerFrame()
	volume := d.Volume()

	var staged [frameBytesF32]byte
	for i := uint32(0); i < frameCount; i++ {
		dst := pOutputSamples[int(i)*bpf : int(i)*bpf+bpf]
		if d.staging.pull(staged[:]) < frameBytesF32 {
			silenceFrame(dst, format)
			continue
		}
		l, r := readF32Frame(staged[:])
		writeFrame(dst, l, r, format, volume)
	}
}

// onStop is called by malgo when the device stops unexpectedly (xrun,
// device unplugged, etc). It only flags; recovery happens via Poll.
func (d *Device) onStop() {
	d.recovery.signalFailure()
}

// silenceFrame writes one frame of true silence in format: zero for
// signed/float encodings, the unsigned midpoint for FormatU16.
func silenceFrame(dst []byte, format SampleFormat) {
	writeFrame(dst, 0, 0, format, 1.0)
}

func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func malgoFormat(f SampleFormat) malgo.FormatType {
	switch f.wireFormat() {
	case FormatI16:
		return malgo.FormatS16
	default:
		return malgo.FormatF32
	}
}

// resolvePlaybackDevice finds a playback device by name, falling back to
// the system default (mirrors malgo/device.go's SelectDevice, applied to
// the Playback device list instead of Capture).
func resolvePlaybackDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, bool) {
	devices, err := ctx.Devices(malgo.Playback)
	if err != nil || len(devices) == 0 {
		return nil, false
	}
	if name == "" || name == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], true
			}
		}
		return &devices[0], true
	}
	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], true
		}
	}
	for i := range devices {
		if devices[i].IsDefault == 1 {
			return &devices[i], true
		}
	}
	return nil, false
}
