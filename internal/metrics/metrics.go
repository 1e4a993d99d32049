// Package metrics exposes the playback pipeline's Prometheus metrics.
// Grounded on internal/audiocore/metrics.go's MetricsCollector (a
// constructor taking a registry, returning an error on duplicate
// registration, the way NewMyAudioMetrics(registry) does in
// internal/observability/metrics), generalized from one manager/source
// pair's audio-capture metrics to this domain's playback events.
//
// Unlike the teacher's package-level globalMetrics/InitMetrics/GetMetrics
// singleton, Metrics here is constructed once by the composition root and
// passed by reference, per spec.md §9's "avoid globals for PARAMS" (the
// same deviation already made for internal/playerconf).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wkmp/wkmp-ap/internal/buildinfo"
	"github.com/wkmp/wkmp-ap/internal/ptevents"
)

// Metrics holds every Prometheus collector the pipeline reports. It
// implements internal/ptevents.Consumer, so the composition root wires it
// as just another bus subscriber rather than threading Record* calls
// through every component by hand.
type Metrics struct {
	playbackState prometheus.Gauge

	passagesStarted   prometheus.Counter
	passagesCompleted *prometheus.CounterVec // label: completed={"true","false"}

	queueDepth  prometheus.Gauge
	queueEvents *prometheus.CounterVec // label: event={"changed","enqueued","dequeued","empty"}

	volumeLevel prometheus.Gauge

	bufferTransitions *prometheus.CounterVec // labels: from, to

	deviceRecoveryAttempts prometheus.Counter
	deviceFallbacks        prometheus.Counter
	deviceAlerts           prometheus.Counter

	validationFailures prometheus.Counter

	buildInfo *prometheus.GaugeVec
}

// New builds and registers every collector against registry. Mirrors
// NewMyAudioMetrics(registry) (*MyAudioMetrics, error): registration
// failure (most commonly a duplicate name from calling New twice against
// the same registry) is returned rather than panicking, so callers can
// decide whether that's fatal. build supplies the version/build_date/
// system_id labels for the build_info gauge, the standard Prometheus
// pattern for surfacing build metadata as a constant-1 gauge rather than
// a log line alone.
func New(registry *prometheus.Registry, build buildinfo.BuildInfo) (*Metrics, error) {
	m := &Metrics{
		playbackState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wkmp",
			Subsystem: "playback",
			Name:      "state",
			Help:      "1 if the engine is playing, 0 if paused/stopped.",
		}),
		passagesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "playback",
			Name:      "passages_started_total",
			Help:      "Count of passages that began playback.",
		}),
		passagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "playback",
			Name:      "passages_completed_total",
			Help:      "Count of passages that finished playback, by whether they played to completion.",
		}, []string{"completed"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wkmp",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current number of entries in the playback queue.",
		}),
		queueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "queue",
			Name:      "events_total",
			Help:      "Count of queue lifecycle events, by kind.",
		}, []string{"event"}),
		volumeLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wkmp",
			Subsystem: "playback",
			Name:      "volume_level",
			Help:      "Current master volume, 0.0-1.0.",
		}),
		bufferTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "buffer",
			Name:      "state_transitions_total",
			Help:      "Count of buffer lifecycle state transitions, by from/to state.",
		}, []string{"from", "to"}),
		deviceRecoveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "device",
			Name:      "recovery_attempts_total",
			Help:      "Count of audio device recovery (rebuild) attempts.",
		}),
		deviceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "device",
			Name:      "fallbacks_total",
			Help:      "Count of falls back to the system default audio device.",
		}),
		deviceAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "device",
			Name:      "alerts_total",
			Help:      "Count of device-level alerts raised after recovery and fallback both failed.",
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wkmp",
			Subsystem: "validation",
			Name:      "failures_total",
			Help:      "Count of pipeline sample-conservation check failures.",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wkmp",
			Subsystem: "playback",
			Name:      "build_info",
			Help:      "Always 1; labels carry build metadata.",
		}, []string{"version", "build_date", "system_id"}),
	}

	collectors := []prometheus.Collector{
		m.playbackState, m.passagesStarted, m.passagesCompleted,
		m.queueDepth, m.queueEvents, m.volumeLevel, m.bufferTransitions,
		m.deviceRecoveryAttempts, m.deviceFallbacks, m.deviceAlerts,
		m.validationFailures, m.buildInfo,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	if build != nil {
		m.buildInfo.WithLabelValues(build.Version(), build.BuildDate(), build.SystemID()).Set(1)
	}
	return m, nil
}

// Name identifies this consumer to internal/ptevents.Bus.RegisterConsumer.
func (m *Metrics) Name() string {
	return "metrics"
}

// ProcessEvent updates the relevant collector for event.Kind. Unrecognized
// kinds are ignored: this consumer only reports on the subset of the
// domain event set that maps to a useful metric.
func (m *Metrics) ProcessEvent(event ptevents.Event) error {
	switch event.Kind {
	case ptevents.KindPlaybackStateChanged:
		if event.Playing {
			m.playbackState.Set(1)
		} else {
			m.playbackState.Set(0)
		}

	case ptevents.KindPassageStarted:
		m.passagesStarted.Inc()

	case ptevents.KindPassageCompleted:
		m.passagesCompleted.WithLabelValues(strconv.FormatBool(event.Completed)).Inc()

	case ptevents.KindQueueChanged:
		m.queueDepth.Set(float64(len(event.Entries)))
		m.queueEvents.WithLabelValues("changed").Inc()

	case ptevents.KindPassageEnqueued:
		m.queueEvents.WithLabelValues("enqueued").Inc()

	case ptevents.KindPassageDequeued:
		m.queueEvents.WithLabelValues("dequeued").Inc()

	case ptevents.KindQueueEmpty:
		m.queueEvents.WithLabelValues("empty").Inc()

	case ptevents.KindVolumeChanged:
		m.volumeLevel.Set(event.Volume)

	case ptevents.KindBufferStateChanged:
		m.bufferTransitions.WithLabelValues(event.BufferFrom, event.BufferTo).Inc()

	case ptevents.KindDeviceRecoveryAttempted:
		m.deviceRecoveryAttempts.Inc()

	case ptevents.KindDeviceFellBack:
		m.deviceFallbacks.Inc()

	case ptevents.KindDeviceAlert:
		m.deviceAlerts.Inc()

	case ptevents.KindValidationFailure:
		m.validationFailures.Inc()
	}
	return nil
}
