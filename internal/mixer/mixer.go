// Package mixer implements sample-accurate crossfade mixing between two
// passage buffers, plus an engine-level instant-start/pause/resume ramp
// independent of the passages' own pre-buffer fades. Grounded on
// _examples/original_source/wkmp-ap/src/playback/pipeline/single_stream/mixer.rs.
package mixer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wkmp/wkmp-ap/internal/fade"
	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
	"github.com/wkmp/wkmp-ap/internal/playout"
)

// State is the mixer's crossfade phase.
type State int

const (
	StateSingle State = iota
	StateCrossfading
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateCrossfading:
		return "crossfading"
	case StateCompleted:
		return "completed"
	default:
		return "single"
	}
}

// Default pause-decay tuning, per spec.md §4.10/§13.
const (
	DefaultPauseDecayFactor = 0.95
	DefaultPauseDecayFloor  = 1.778e-4
)

// RingProvider resolves a queue entry to its playout ring. Satisfied by
// *internal/buffermanager.Manager; a narrow interface so the mixer doesn't
// need the whole manager surface and can be driven by a fake in tests.
type RingProvider interface {
	Ring(id model.QueueEntryID) (*playout.Ring, bool)
}

// CompletionSink receives CrossfadeCompleted notifications.
type CompletionSink interface {
	CrossfadeCompleted(oldPassage model.QueueEntryID)
}

// CaptureSink receives every stereo frame ProcessAudio produces, in order.
// Satisfied by *internal/decodepool.Capture; used only for the optional
// debug/reference WAV export (SPEC_FULL.md §B), never required for normal
// playback, so a nil sink costs one branch per ProcessAudio call.
type CaptureSink interface {
	CaptureFrames(frames []playout.Frame)
}

// ramp is the engine-level amplitude ramp used for instant-start and
// pause-resume (independent of the passages' own pre-buffer fade curves).
type ramp struct {
	curve  model.FadeCurve
	total  int64
	cursor int64
}

func (r *ramp) done() bool { return r == nil || r.cursor >= r.total }

// next returns the next multiplier and advances the ramp's cursor.
func (r *ramp) next() float64 {
	if r.done() {
		return 1.0
	}
	p := float64(r.cursor) / float64(r.total)
	r.cursor++
	return fade.CurveIn(r.curve, p)
}

// Mixer mixes up to two passage ring buffers into stereo output frames on
// demand. All state transitions happen under mu; ProcessAudio is the sole
// entry point the mixer feeder calls.
type Mixer struct {
	mu sync.Mutex

	buffers    RingProvider
	sampleRate int64
	sink       CompletionSink
	capture    CaptureSink
	logger     *slog.Logger

	state State

	current    model.QueueEntryID
	hasCurrent bool
	next       model.QueueEntryID
	hasNext    bool

	startRamp *ramp // instant-start/resume fade applied atop current's output

	crossfadeCursor int64
	crossfadeTotal  int64
	fadeOutCurve    model.FadeCurve
	fadeInCurve     model.FadeCurve

	paused           bool
	pauseDecayLevel  float64
	pauseDecayFactor float64
	pauseDecayFloor  float64

	// framesRead/framesOutput accumulate ring drains and produced stereo
	// frames respectively, for internal/validation's conservation check
	// (spec.md §8 property 10). Atomic so the validator can read them from
	// its own goroutine without taking mu.
	framesRead   atomic.Int64
	framesOutput atomic.Int64
}

// Option configures a Mixer at construction.
type Option func(*Mixer)

// WithCompletionSink registers a CrossfadeCompleted consumer.
func WithCompletionSink(sink CompletionSink) Option {
	return func(m *Mixer) { m.sink = sink }
}

// WithPauseDecay overrides the default pause-decay factor/floor.
func WithPauseDecay(factor, floor float64) Option {
	return func(m *Mixer) {
		m.pauseDecayFactor = factor
		m.pauseDecayFloor = floor
	}
}

// WithCaptureSink registers a debug/reference capture of every output
// frame. Not used in normal operation; see internal/decodepool.Capture.
func WithCaptureSink(capture CaptureSink) Option {
	return func(m *Mixer) { m.capture = capture }
}

// New builds a Mixer over buffers at sampleRate (the working rate; all
// sample counts passed to Mixer methods are at this rate).
func New(buffers RingProvider, sampleRate int64, opts ...Option) *Mixer {
	m := &Mixer{
		buffers:          buffers,
		sampleRate:       sampleRate,
		state:            StateSingle,
		pauseDecayLevel:  1.0,
		pauseDecayFactor: DefaultPauseDecayFactor,
		pauseDecayFloor:  DefaultPauseDecayFloor,
		logger:           logging.ForService("mixer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartPassage attaches id as the current passage, replacing whatever was
// playing. fadeInSamples > 0 applies an engine-level instant-start ramp on
// top of the passage's own pre-buffer fade (independent curves).
func (m *Mixer) StartPassage(id model.QueueEntryID, fadeInCurve model.FadeCurve, fadeInSamples int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = id
	m.hasCurrent = true
	m.next = model.QueueEntryID{}
	m.hasNext = false
	m.state = StateSingle
	if fadeInSamples > 0 {
		m.startRamp = &ramp{curve: fadeInCurve, total: fadeInSamples}
	} else {
		m.startRamp = nil
	}
}

// StartCrossfade begins crossfading from the current passage to nextID.
// Requires a current passage already playing; nextID's buffer readiness is
// the caller's (engine's) responsibility to have verified.
func (m *Mixer) StartCrossfade(nextID model.QueueEntryID, fadeOutCurve model.FadeCurve, fadeOutSamples int64, fadeInCurve model.FadeCurve, fadeInSamples int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasCurrent {
		return perrors.New(errNoCurrentPassage).Category(perrors.CategoryMixer).Build()
	}

	total := fadeOutSamples
	if fadeInSamples > total {
		total = fadeInSamples
	}
	if total <= 0 {
		return perrors.New(errDegenerateCrossfade).Category(perrors.CategoryMixer).Build()
	}

	m.next = nextID
	m.hasNext = true
	m.state = StateCrossfading
	m.crossfadeCursor = 0
	m.crossfadeTotal = total
	m.fadeOutCurve = fadeOutCurve
	m.fadeInCurve = fadeInCurve
	return nil
}

// Pause enters pause-decay mode: output amplitude multiplies by a level
// that decays by pauseDecayFactor per frame until it drops below
// pauseDecayFloor, after which output is hard zero.
func (m *Mixer) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume ramps output back to full amplitude over durationSamples using
// curve, then clears pause state.
func (m *Mixer) Resume(curve model.FadeCurve, durationSamples int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.pauseDecayLevel = 1.0
	if durationSamples > 0 {
		m.startRamp = &ramp{curve: curve, total: durationSamples}
	}
}

// Stop clears all mixer state; subsequent ProcessAudio calls return
// silence until StartPassage is called again.
func (m *Mixer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasCurrent = false
	m.hasNext = false
	m.state = StateSingle
	m.startRamp = nil
	m.paused = false
	m.pauseDecayLevel = 1.0
}

// State reports the mixer's current crossfade phase (diagnostics/tests).
func (m *Mixer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ProcessAudio produces exactly numFrames stereo frames. The engine-level
// ramp/pause decay is applied once to the whole result, after any
// crossfade-completion recursion below has resolved the mix itself.
func (m *Mixer) ProcessAudio(numFrames int) []playout.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.applyEngineRampsLocked(m.fillLocked(numFrames))
	m.framesOutput.Add(int64(len(out)))
	if m.capture != nil {
		m.capture.CaptureFrames(out)
	}
	return out
}

// FramesRead returns the cumulative count of frames drained from passage
// ring buffers, for internal/validation's pipeline conservation check.
func (m *Mixer) FramesRead() int64 {
	return m.framesRead.Load()
}

// FramesOutput returns the cumulative count of stereo frames ProcessAudio
// has produced (including silence padding), for internal/validation's
// pipeline conservation check.
func (m *Mixer) FramesOutput() int64 {
	return m.framesOutput.Load()
}

// fillLocked resolves Crossfading->Completed->Single transitions
// synchronously within this call, recursing to fill any shortfall left by
// a crossfade completing mid-request. It never applies the engine ramp;
// that happens exactly once, in ProcessAudio, over the fully assembled
// result.
func (m *Mixer) fillLocked(numFrames int) []playout.Frame {
	if numFrames <= 0 {
		return nil
	}
	switch m.state {
	case StateCrossfading:
		out := m.mixCrossfadeLocked(numFrames)
		if m.state == StateCompleted {
			m.completeCrossfadeLocked()
			if len(out) < numFrames {
				out = append(out, m.fillLocked(numFrames-len(out))...)
			}
		}
		return out
	case StateCompleted:
		// Not normally reached (mixCrossfadeLocked's caller resolves the
		// transition inline above); kept as a safety net.
		m.completeCrossfadeLocked()
		return m.fillLocked(numFrames)
	default:
		return m.drainSingleLocked(numFrames)
	}
}

// drainSingleLocked reads from the current passage's ring, eagerly
// transitioning to a queued next passage on exhaustion (no crossfade), and
// pads any shortfall with silence.
func (m *Mixer) drainSingleLocked(numFrames int) []playout.Frame {
	if !m.hasCurrent {
		return silence(numFrames)
	}
	ring, ok := m.buffers.Ring(m.current)
	if !ok {
		return silence(numFrames)
	}

	out := ring.Drain(numFrames)
	m.framesRead.Add(int64(len(out)))
	if len(out) < numFrames && ring.IsExhausted() && m.hasNext {
		m.logger.Debug("current buffer exhausted, transitioning without crossfade", "queue_entry_id", m.current)
		old := m.current
		m.current = m.next
		m.hasNext = false
		if m.sink != nil {
			m.sink.CrossfadeCompleted(old)
		}
		out = append(out, m.fillLocked(numFrames-len(out))...)
		return out
	}
	if len(out) < numFrames {
		out = append(out, silence(numFrames-len(out))...)
	}
	return out
}

// mixCrossfadeLocked blends current and next until crossfadeCursor reaches
// crossfadeTotal, then marks StateCompleted and returns early (possibly
// short of numFrames): the remainder is filled by the caller re-entering
// fillLocked against the post-completion state.
func (m *Mixer) mixCrossfadeLocked(numFrames int) []playout.Frame {
	curRing, curOK := m.buffers.Ring(m.current)
	nextRing, nextOK := m.buffers.Ring(m.next)

	out := make([]playout.Frame, 0, numFrames)
	for len(out) < numFrames && m.crossfadeCursor < m.crossfadeTotal {
		progress := float64(m.crossfadeCursor) / float64(m.crossfadeTotal)
		currentGain := fade.CurveOut(m.fadeOutCurve, progress)
		nextGain := fade.CurveIn(m.fadeInCurve, progress)

		var cf, nf playout.Frame
		if curOK {
			if frames := curRing.Drain(1); len(frames) == 1 {
				cf = frames[0]
				m.framesRead.Add(1)
			}
		}
		if nextOK {
			if frames := nextRing.Drain(1); len(frames) == 1 {
				nf = frames[0]
				m.framesRead.Add(1)
			}
		}

		out = append(out, playout.Frame{
			L: clamp(cf.L*float32(currentGain) + nf.L*float32(nextGain)),
			R: clamp(cf.R*float32(currentGain) + nf.R*float32(nextGain)),
		})
		m.crossfadeCursor++
	}

	if m.crossfadeCursor >= m.crossfadeTotal {
		m.state = StateCompleted
	}
	return out
}

func (m *Mixer) completeCrossfadeLocked() {
	old := m.current
	m.current = m.next
	m.hasNext = false
	m.state = StateSingle
	if m.sink != nil {
		m.sink.CrossfadeCompleted(old)
	}
}

// applyEngineRampsLocked applies the instant-start/resume ramp and pause
// decay, in that order, to each produced frame.
func (m *Mixer) applyEngineRampsLocked(frames []playout.Frame) []playout.Frame {
	for i := range frames {
		mult := 1.0
		if m.startRamp != nil {
			mult *= m.startRamp.next()
			if m.startRamp.done() {
				m.startRamp = nil
			}
		}
		if m.paused {
			if m.pauseDecayLevel < m.pauseDecayFloor {
				mult = 0
			} else {
				mult *= m.pauseDecayLevel
				m.pauseDecayLevel *= m.pauseDecayFactor
			}
		}
		if mult != 1.0 {
			frames[i].L *= float32(mult)
			frames[i].R *= float32(mult)
		}
	}
	return frames
}

func silence(n int) []playout.Frame {
	return make([]playout.Frame, n)
}

func clamp(v float32) float32 {
	switch {
	case v > 1.0:
		return 1.0
	case v < -1.0:
		return -1.0
	default:
		return v
	}
}
