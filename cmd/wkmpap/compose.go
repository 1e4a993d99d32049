package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wkmp/wkmp-ap/internal/audiodevice"
	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/decodepool"
	"github.com/wkmp/wkmp-ap/internal/engine"
	"github.com/wkmp/wkmp-ap/internal/events"
	"github.com/wkmp/wkmp-ap/internal/metrics"
	"github.com/wkmp/wkmp-ap/internal/mixer"
	"github.com/wkmp/wkmp-ap/internal/perrors"
	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
	"github.com/wkmp/wkmp-ap/internal/ptevents"
	"github.com/wkmp/wkmp-ap/internal/queueassign"
	"github.com/wkmp/wkmp-ap/internal/validation"
)

// pipeline is every long-lived component the "play" command needs, wired
// exactly once by buildPipeline. Subcommands that don't run the engine
// (enqueue/dequeue/skip/status) open only the store directly instead of
// calling this; see playCommand's doc comment in play.go for why.
type pipeline struct {
	store    *pstore.Store
	bus      *ptevents.Bus
	adapter  *ptevents.Adapter
	metrics  *metrics.Metrics
	errorBus *events.EventBus

	buffers *buffermanager.Manager
	decoder *decodepool.Pool
	queue   *queueassign.Assigner
	engine  *engine.Engine
	mixer   *mixer.Mixer
	device  *audiodevice.Device
	checker *validation.Checker

	// capture and exportPath are both nil/empty unless
	// Settings.ExportWAVPath was set; Close writes the capture out then.
	capture    *decodepool.Capture
	exportPath string
}

// buildPipeline wires every component in the order engine.New's doc comment
// requires to break the engine/mixer/device constructor cycle:
//
//  1. buffermanager.Manager
//  2. decodepool.Pool, backed by the buffer manager
//  3. queueassign.Assigner (needs only the decoder/buffer narrow interfaces)
//  4. engine.Engine, built with a nil mixer and nil device
//  5. mixer.Mixer, built with WithCompletionSink(eng)
//  6. eng.SetMixer(mx), closing the engine/mixer half of the cycle
//  7. audiodevice.Device, built with mx as its frame source
//  8. eng.SetDevice(device), closing the engine/device half
//
// A single internal/ptevents.Adapter is the Sink/EventSink/HealthSink for
// every component; internal/metrics.Metrics is registered as a bus consumer
// before anything can publish, since Bus.TryPublish drops events when no
// consumer is registered.
//
// Separately, internal/events is the older, narrower bus that only carries
// perrors.EnhancedError telemetry (errors surfaced through internal/perrors,
// not the playback-domain events ptevents carries). It's wired the same
// way: a consumer (events.LogConsumer) registered before anything publishes,
// and perrors.SetEventPublisher given an events.Publisher adapter so
// perrors never imports events directly.
func buildPipeline(settings *playerconf.Settings) (*pipeline, error) {
	store, err := pstore.Open(settings.StoreConfig())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry, build)
	if err != nil {
		store.Close()
		return nil, err
	}

	bus := ptevents.New(ptevents.DefaultConfig())
	if err := bus.RegisterConsumer(m); err != nil {
		store.Close()
		return nil, err
	}
	adapter := ptevents.NewAdapter(bus)

	errorBus, err := events.Initialize(events.DefaultConfig())
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := errorBus.RegisterConsumer(events.NewLogConsumer()); err != nil {
		store.Close()
		return nil, err
	}
	perrors.SetEventPublisher(events.NewPublisher(errorBus))

	bufferOpts := append(settings.BufferManagerOptions(), buffermanager.WithSink(adapter))
	buffers := buffermanager.New(bufferOpts...)
	decoder := decodepool.New(buffers, settings.DecodePoolOptions()...)
	queue := queueassign.New(decoder, buffers, settings.QueueAssignOptions()...)

	// engine.New calls queue.SetSink(eng) internally, so queue events reach
	// adapter via Engine's own Sink rather than a separate queueassign.WithSink.
	eng := engine.New(queue, buffers, decoder, nil, store, adapter, settings.EngineConfig())

	mixerOpts := append(settings.MixerOptions(), mixer.WithCompletionSink(eng))
	var capture *decodepool.Capture
	if settings.ExportWAVPath != "" {
		capture = decodepool.NewCapture(int(settings.WorkingSampleRate))
		mixerOpts = append(mixerOpts, mixer.WithCaptureSink(capture))
	}
	mx := mixer.New(buffers, settings.WorkingSampleRate, mixerOpts...)
	eng.SetMixer(mx)

	device := audiodevice.New(mx, settings.DeviceConfig(), adapter)
	eng.SetDevice(device)

	checker := validation.New(settings.ValidationConfig(), decoder, buffers, mx, adapter)

	return &pipeline{
		store:    store,
		bus:      bus,
		adapter:  adapter,
		metrics:  m,
		errorBus: errorBus,
		buffers:  buffers,
		decoder:  decoder,
		queue:    queue,
		engine:   eng,
		mixer:    mx,
		device:   device,
		checker:  checker,

		capture:    capture,
		exportPath: settings.ExportWAVPath,
	}, nil
}

// Close releases every resource buildPipeline opened, in reverse order.
func (p *pipeline) Close() error {
	if err := p.device.Stop(); err != nil {
		return err
	}
	p.decoder.Shutdown()
	if p.capture != nil {
		if err := p.capture.WriteWAV(p.exportPath); err != nil {
			return err
		}
	}
	if err := p.errorBus.Shutdown(5 * time.Second); err != nil {
		return err
	}
	if err := p.bus.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return p.store.Close()
}
