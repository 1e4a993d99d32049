package audiodevice

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// maxConsecutiveFailures is the retry budget before recovery gives up
// rebuilding the same device and falls back to the system default, per
// spec.md §4.11/§5/§7.
const maxConsecutiveFailures = 3

// deviceOps abstracts the malgo lifecycle calls recovery needs, so the
// state machine is testable without real hardware/cgo.
type deviceOps interface {
	// rebuild tears down and reinitializes the device on the currently
	// selected device ID.
	rebuild() error
	// fallbackToDefault reinitializes the device against the system
	// default output device.
	fallbackToDefault() error
}

// HealthSink receives device-level recovery notifications.
type HealthSink interface {
	DeviceRecoveryAttempted(attempt int)
	DeviceFellBack()
	DeviceAlert(err error)
}

// recovery implements the stop/rebuild/fallback state machine: the
// callback's error path calls signalFailure, which only sets an atomic
// flag. Recovery runs when Device.Poll calls attempt (the engine's command
// loop polls on its device-poll interval); attempt, not the callback,
// increments the consecutive-attempt counter. No goroutine in this package
// watches the flag.
type recovery struct {
	ops    deviceOps
	sink   HealthSink
	logger *slog.Logger

	failed         atomic.Bool
	consecutive    atomic.Int32
	fellBack       atomic.Bool
	recoveryActive atomic.Bool

	mu sync.Mutex
}

func newRecovery(ops deviceOps, sink HealthSink, logger *slog.Logger) *recovery {
	return &recovery{ops: ops, sink: sink, logger: logger}
}

// signalFailure is called from the device callback on error. It never
// blocks and performs no I/O itself, per spec.md §4.11's hard-realtime
// constraint on the callback path.
func (r *recovery) signalFailure() {
	r.failed.Store(true)
}

// Unhealthy reports whether a failure is pending recovery (poll target
// for an engine integration, per spec.md §4.11/§5's literal wording).
func (r *recovery) Unhealthy() bool {
	return r.failed.Load()
}

// FailureCount returns the number of consecutive rebuild failures since
// the last successful recovery or fallback.
func (r *recovery) FailureCount() int {
	return int(r.consecutive.Load())
}

// FellBack reports whether recovery has already given up on the
// originally selected device and is running against the system default.
func (r *recovery) FellBack() bool {
	return r.fellBack.Load()
}

// attempt runs one recovery pass if a failure is pending: rebuild on the
// same device, and after maxConsecutiveFailures consecutive rebuild
// failures, fall back to the system default. Safe to call repeatedly
// (e.g. from a poll loop); it is a no-op when no failure is pending or
// a recovery attempt is already in flight.
func (r *recovery) attempt() {
	if !r.failed.Load() {
		return
	}
	if !r.recoveryActive.CompareAndSwap(false, true) {
		return
	}
	defer r.recoveryActive.Store(false)

	r.failed.Store(false)
	attempt := int(r.consecutive.Add(1))
	if r.sink != nil {
		r.sink.DeviceRecoveryAttempted(attempt)
	}

	if attempt <= maxConsecutiveFailures {
		if err := r.ops.rebuild(); err == nil {
			r.consecutive.Store(0)
			return
		}
		// Rebuild failed; signal again so the next poll retries (or
		// falls back once the budget is exhausted).
		r.failed.Store(true)
		return
	}

	if r.logger != nil {
		r.logger.Warn("device recovery exhausted retries, falling back to default device",
			"consecutive_failures", attempt-1)
	}
	if err := r.ops.fallbackToDefault(); err != nil {
		if r.logger != nil {
			if snap, sampleErr := SampleSystemHealth(); sampleErr == nil {
				r.logger.Error("device fallback failed", "error", err,
					"cpu_percent", snap.CPUPercent, "memory_percent", snap.MemoryPercent)
			}
		}
		if r.sink != nil {
			r.sink.DeviceAlert(perrors.New(err).Category(perrors.CategoryDevice).Build())
		}
		// Still failing after fallback: leave failed set so future
		// polls keep retrying the fallback, per spec.md §7's
		// "surface a device-level alert event and output silence".
		r.failed.Store(true)
		return
	}

	r.consecutive.Store(0)
	r.fellBack.Store(true)
	if r.sink != nil {
		r.sink.DeviceFellBack()
	}
}
