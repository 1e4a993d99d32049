// Package buffermanager owns the set of per-chain playout ring buffers and
// the pause/resume predicates the serial decoder consults between chunks.
package buffermanager

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/playout"
)

// Headroom (H) and hysteresis (G) defaults, in samples at 44.1kHz: pause
// when free space drops to 0.1s remaining, resume only once 1.1s total is
// free again. The gap between pause and resume thresholds prevents
// oscillation under a decoder producing in bursts.
const (
	DefaultHeadroomSamples   = 4410
	DefaultHysteresisSamples = 44100
)

// TransitionEvent describes a buffer lifecycle change.
type TransitionEvent struct {
	QueueEntryID model.QueueEntryID
	From, To     playout.State
}

// Sink receives BufferStateChanged events.
type Sink interface {
	BufferStateChanged(TransitionEvent)
}

type entry struct {
	ring               *playout.Ring
	discoveredEndpoint *int64 // ticks; nil until the decoder reports it
}

// Manager owns queue_entry_id -> (ring buffer, state, discovered endpoint).
type Manager struct {
	mu      sync.RWMutex
	entries map[model.QueueEntryID]*entry

	capacityFrames int
	headroom       int64
	hysteresis     int64

	sink   Sink
	logger *slog.Logger

	// framesWritten accumulates every frame count PushSamples accepted,
	// across every buffer this manager has ever owned, for
	// internal/validation's conservation check (spec.md §8 property 10).
	framesWritten atomic.Int64
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithCapacityFrames overrides the default ring capacity (in frames).
func WithCapacityFrames(frames int) Option {
	return func(m *Manager) { m.capacityFrames = frames }
}

// WithThresholds overrides the default headroom/hysteresis, in samples.
func WithThresholds(headroom, hysteresis int64) Option {
	return func(m *Manager) {
		m.headroom = headroom
		m.hysteresis = hysteresis
	}
}

// WithSink registers a BufferStateChanged consumer.
func WithSink(sink Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

// New builds a buffer manager with spec defaults unless overridden.
func New(opts ...Option) *Manager {
	m := &Manager{
		entries:        make(map[model.QueueEntryID]*entry),
		capacityFrames: 15 * 44100, // ~15s at 44.1kHz, spec.md §3 default
		headroom:       DefaultHeadroomSamples,
		hysteresis:     DefaultHysteresisSamples,
		logger:         logging.ForService("buffermanager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterDecoding creates (or, if one already exists, leaves untouched)
// the ring buffer for id. Idempotent: a racing duplicate submission for
// the same queue entry observes "already managed" and is a no-op, which
// is what keeps the decoder's priority heap from ever holding two live
// requests for one queue_entry_id.
func (m *Manager) RegisterDecoding(id model.QueueEntryID) *playout.Ring {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[id]; ok {
		return e.ring
	}
	ring := playout.New(m.capacityFrames)
	m.entries[id] = &entry{ring: ring}
	m.emit(id, playout.StateIdle, playout.StateIdle)
	return ring
}

func (m *Manager) get(id model.QueueEntryID) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[id]
}

// PushSamples forwards to id's ring, emitting a transition if this is the
// first write (Idle -> Filling) or the ring becomes Ready.
func (m *Manager) PushSamples(id model.QueueEntryID, samples []float32) int {
	e := m.get(id)
	if e == nil {
		return 0
	}
	before := e.ring.State()
	n := e.ring.PushSamples(samples)
	m.framesWritten.Add(int64(n))
	after := e.ring.State()
	if after != before {
		m.emit(id, before, after)
	}
	return n
}

// FramesWritten returns the cumulative count of frames accepted across
// every buffer this manager has ever owned, for internal/validation's
// pipeline conservation check.
func (m *Manager) FramesWritten() int64 {
	return m.framesWritten.Load()
}

// FinalizeBuffer seals id's ring with its true total frame count.
func (m *Manager) FinalizeBuffer(id model.QueueEntryID, totalFrames int64) {
	e := m.get(id)
	if e == nil {
		return
	}
	before := e.ring.State()
	e.ring.Finalize(totalFrames)
	m.emit(id, before, playout.StateFinished)
}

// SetDiscoveredEndpoint records the decoder's discovered end-of-stream
// tick for a passage whose nominal end was unknown at enqueue time.
func (m *Manager) SetDiscoveredEndpoint(id model.QueueEntryID, ticks int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.discoveredEndpoint = &ticks
	}
}

// DiscoveredEndpoint returns the recorded endpoint, if any.
func (m *Manager) DiscoveredEndpoint(id model.QueueEntryID) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[id]; ok && e.discoveredEndpoint != nil {
		return *e.discoveredEndpoint, true
	}
	return 0, false
}

// ShouldDecoderPause reports whether id's ring has dropped to or below
// the headroom threshold: free_space <= H.
func (m *Manager) ShouldDecoderPause(id model.QueueEntryID) bool {
	e := m.get(id)
	if e == nil {
		return false
	}
	return e.ring.FreeFrames() <= m.headroom
}

// CanDecoderResume reports whether id's ring has recovered past the
// hysteresis gap: free_space >= H + G.
func (m *Manager) CanDecoderResume(id model.QueueEntryID) bool {
	e := m.get(id)
	if e == nil {
		return false
	}
	return e.ring.FreeFrames() >= m.headroom+m.hysteresis
}

// IsBufferExhausted reports whether id's ring is finalized and fully
// drained.
func (m *Manager) IsBufferExhausted(id model.QueueEntryID) bool {
	e := m.get(id)
	if e == nil {
		return false
	}
	return e.ring.IsExhausted()
}

// Ring exposes id's underlying ring buffer for the mixer to drain
// directly.
func (m *Manager) Ring(id model.QueueEntryID) (*playout.Ring, bool) {
	e := m.get(id)
	if e == nil {
		return nil, false
	}
	return e.ring, true
}

// Release drops id's buffer entirely (queue entry removed/completed).
func (m *Manager) Release(id model.QueueEntryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

func (m *Manager) emit(id model.QueueEntryID, from, to playout.State) {
	if m.sink == nil {
		return
	}
	m.sink.BufferStateChanged(TransitionEvent{QueueEntryID: id, From: from, To: to})
	if m.logger != nil {
		m.logger.Debug("buffer state changed", "queue_entry_id", id, "from", from, "to", to)
	}
}
