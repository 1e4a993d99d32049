package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/buildinfo"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/ptevents"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := New(registry, nil)
	require.NoError(t, err)
	return m
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry, nil)
	require.NoError(t, err)
	_, err = New(registry, nil)
	require.Error(t, err)
}

func TestProcessEventPlaybackState(t *testing.T) {
	m := newTestMetrics(t)

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPlaybackStateChanged, Playing: true}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.playbackState))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPlaybackStateChanged, Playing: false}))
	require.Equal(t, float64(0), testutil.ToFloat64(m.playbackState))
}

func TestProcessEventPassageLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageStarted}))
	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageStarted}))
	require.Equal(t, float64(2), testutil.ToFloat64(m.passagesStarted))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageCompleted, Completed: true}))
	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageCompleted, Completed: false}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.passagesCompleted.WithLabelValues("true")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.passagesCompleted.WithLabelValues("false")))
}

func TestProcessEventQueueEvents(t *testing.T) {
	m := newTestMetrics(t)

	require.NoError(t, m.ProcessEvent(ptevents.Event{
		Kind:    ptevents.KindQueueChanged,
		Entries: []model.QueueEntry{{}, {}, {}},
	}))
	require.Equal(t, float64(3), testutil.ToFloat64(m.queueDepth))
	require.Equal(t, float64(1), testutil.ToFloat64(m.queueEvents.WithLabelValues("changed")))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageEnqueued}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.queueEvents.WithLabelValues("enqueued")))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPassageDequeued}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.queueEvents.WithLabelValues("dequeued")))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindQueueEmpty}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.queueEvents.WithLabelValues("empty")))
}

func TestProcessEventVolumeAndBuffer(t *testing.T) {
	m := newTestMetrics(t)

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindVolumeChanged, Volume: 0.42}))
	require.Equal(t, 0.42, testutil.ToFloat64(m.volumeLevel))

	require.NoError(t, m.ProcessEvent(ptevents.Event{
		Kind:       ptevents.KindBufferStateChanged,
		BufferFrom: "filling",
		BufferTo:   "ready",
	}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.bufferTransitions.WithLabelValues("filling", "ready")))
}

func TestProcessEventDeviceAndValidation(t *testing.T) {
	m := newTestMetrics(t)

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindDeviceRecoveryAttempted, RecoveryAttempt: 1}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.deviceRecoveryAttempts))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindDeviceFellBack}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.deviceFallbacks))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindDeviceAlert}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.deviceAlerts))

	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindValidationFailure}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.validationFailures))
}

func TestProcessEventIgnoresUnmappedKind(t *testing.T) {
	m := newTestMetrics(t)
	require.NoError(t, m.ProcessEvent(ptevents.Event{Kind: ptevents.KindPlaybackProgress}))
}

func TestMetricsSatisfiesConsumer(t *testing.T) {
	var _ ptevents.Consumer = (*Metrics)(nil)
	require.Equal(t, "metrics", newTestMetrics(t).Name())
}

func TestNewSetsBuildInfoGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	build := buildinfo.NewContext("1.2.3", "2026-01-01", "test-system")
	m, err := New(registry, build)
	require.NoError(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.buildInfo.WithLabelValues("1.2.3", "2026-01-01", "test-system")))
}
