package audiodevice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOps struct {
	rebuildErr   error
	fallbackErr  error
	rebuildCalls int
	fallbackCall int
}

func (f *fakeOps) rebuild() error {
	f.rebuildCalls++
	return f.rebuildErr
}

func (f *fakeOps) fallbackToDefault() error {
	f.fallbackCall++
	return f.fallbackErr
}

type fakeSink struct {
	attempts []int
	fellBack bool
	alerts   []error
}

func (f *fakeSink) DeviceRecoveryAttempted(attempt int) { f.attempts = append(f.attempts, attempt) }
func (f *fakeSink) DeviceFellBack()                     { f.fellBack = true }
func (f *fakeSink) DeviceAlert(err error)               { f.alerts = append(f.alerts, err) }

func TestAttemptIsNoopWithoutPendingFailure(t *testing.T) {
	ops := &fakeOps{}
	r := newRecovery(ops, nil, nil)
	r.attempt()
	assert.Equal(t, 0, ops.rebuildCalls)
}

func TestAttemptRebuildsOnSameDeviceAndResetsOnSuccess(t *testing.T) {
	ops := &fakeOps{}
	sink := &fakeSink{}
	r := newRecovery(ops, sink, nil)

	r.signalFailure()
	r.attempt()

	require.Equal(t, 1, ops.rebuildCalls)
	assert.Equal(t, 0, ops.fallbackCall)
	assert.Equal(t, 0, r.FailureCount())
	assert.False(t, r.Unhealthy())
	assert.Equal(t, []int{1}, sink.attempts)
}

func TestAttemptFallsBackAfterThreeConsecutiveFailures(t *testing.T) {
	ops := &fakeOps{rebuildErr: errors.New("rebuild failed")}
	sink := &fakeSink{}
	r := newRecovery(ops, sink, nil)

	for i := 0; i < maxConsecutiveFailures; i++ {
		r.signalFailure()
		r.attempt()
	}
	assert.Equal(t, maxConsecutiveFailures, ops.rebuildCalls)
	assert.False(t, r.FellBack())

	// Fourth attempt exceeds the budget and falls back.
	r.signalFailure()
	r.attempt()

	assert.Equal(t, 1, ops.fallbackCall)
	assert.True(t, r.FellBack())
	assert.True(t, sink.fellBack)
	assert.Equal(t, 0, r.FailureCount())
}

func TestAttemptSurfacesAlertWhenFallbackAlsoFails(t *testing.T) {
	ops := &fakeOps{
		rebuildErr:  errors.New("rebuild failed"),
		fallbackErr: errors.New("fallback failed"),
	}
	sink := &fakeSink{}
	r := newRecovery(ops, sink, nil)

	for i := 0; i < maxConsecutiveFailures+1; i++ {
		r.signalFailure()
		r.attempt()
	}

	require.Len(t, sink.alerts, 1)
	assert.True(t, r.Unhealthy())
	assert.False(t, r.FellBack())
}
