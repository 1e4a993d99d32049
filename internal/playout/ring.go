// Package playout implements the per-chain playout ring buffer: a
// lock-free, single-producer/single-consumer, stereo-frame-granular ring
// that sits between a decoder worker (producer) and the mixer (consumer).
package playout

import (
	"sync/atomic"
)

// Frame is one stereo sample pair.
type Frame struct {
	L, R float32
}

// State is the buffer's lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateFilling
	StateReady
	StatePlaying
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// notFinalized marks totalFrames before Finalize has been called.
const notFinalized = -1

// Ring is a bounded SPSC ring buffer of stereo frames. The zero value is
// not usable; construct with New. Exactly one goroutine may call
// PushSamples/Finalize ("the producer") and exactly one goroutine may
// call Drain ("the consumer") concurrently with it; both may call the
// read-only accessors (FreeFrames, OccupiedFrames, IsExhausted, State)
// from any goroutine.
type Ring struct {
	buf      []Frame
	capacity int64

	writeIndex atomic.Int64 // total frames ever written (monotonic)
	readIndex  atomic.Int64 // total frames ever read (monotonic)

	decodeComplete atomic.Bool
	totalFrames    atomic.Int64 // set once by Finalize; notFinalized until then

	state atomic.Int32
}

// New allocates a ring holding up to capacity frames.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring{
		buf:      make([]Frame, capacity),
		capacity: int64(capacity),
	}
	r.totalFrames.Store(notFinalized)
	r.state.Store(int32(StateIdle))
	return r
}

// PushSamples writes interleaved stereo samples (L, R, L, R, ...) into the
// ring, returning how many full frames were written; this is short when
// the ring is full. Producer-only.
func (r *Ring) PushSamples(samples []float32) int {
	framesAvailable := len(samples) / 2
	free := r.FreeFrames()
	toWrite := framesAvailable
	if int64(toWrite) > free {
		toWrite = int(free)
	}
	if toWrite <= 0 {
		return 0
	}

	write := r.writeIndex.Load()
	if r.state.Load() == int32(StateIdle) {
		r.state.Store(int32(StateFilling))
	}
	for i := 0; i < toWrite; i++ {
		pos := (write + int64(i)) % r.capacity
		r.buf[pos] = Frame{L: samples[2*i], R: samples[2*i+1]}
	}
	// Publish after the writes are visible: readers never observe
	// writeIndex past data that isn't there yet.
	r.writeIndex.Add(int64(toWrite))
	return toWrite
}

// Drain reads up to n frames into a freshly allocated slice, advancing the
// read position. Consumer-only.
func (r *Ring) Drain(n int) []Frame {
	occupied := r.OccupiedFrames()
	toRead := int64(n)
	if toRead > occupied {
		toRead = occupied
	}
	if toRead <= 0 {
		return nil
	}

	read := r.readIndex.Load()
	out := make([]Frame, toRead)
	for i := int64(0); i < toRead; i++ {
		pos := (read + i) % r.capacity
		out[i] = r.buf[pos]
	}
	r.readIndex.Add(toRead)
	return out
}

// FreeFrames returns how many frames can still be written before the ring
// is full.
func (r *Ring) FreeFrames() int64 {
	return r.capacity - r.OccupiedFrames()
}

// OccupiedFrames returns how many unread frames are currently buffered.
func (r *Ring) OccupiedFrames() int64 {
	return r.writeIndex.Load() - r.readIndex.Load()
}

// Finalize records the decoder's true total frame count, sealing the
// buffer's reported duration. Per invariant I1, later writes (there
// should be none once total is known) never change what Finalize
// recorded. Producer-only, called at most once.
func (r *Ring) Finalize(totalFrames int64) {
	r.totalFrames.Store(totalFrames)
	r.decodeComplete.Store(true)
	r.state.Store(int32(StateFinished))
}

// TotalFrames returns the finalized frame count and whether Finalize has
// been called yet.
func (r *Ring) TotalFrames() (int64, bool) {
	total := r.totalFrames.Load()
	if total == notFinalized {
		return 0, false
	}
	return total, true
}

// IsExhausted reports whether the buffer is both finalized and fully
// drained: decode_complete && read_pos >= total_frames. Per invariant I2
// this is never true before Finalize, preventing a mid-decode false
// end-of-stream.
func (r *Ring) IsExhausted() bool {
	if !r.decodeComplete.Load() {
		return false
	}
	total := r.totalFrames.Load()
	return r.readIndex.Load() >= total
}

// State returns the buffer's current lifecycle state.
func (r *Ring) State() State {
	return State(r.state.Load())
}

// Position returns the total number of frames drained so far, for progress
// reporting and crossfade-trigger-point comparisons. Safe from any
// goroutine.
func (r *Ring) Position() int64 {
	return r.readIndex.Load()
}

// SetState transitions the buffer's lifecycle state explicitly (used by
// the buffer manager for Playing/Paused transitions the ring itself
// cannot infer from read/write positions alone).
func (r *Ring) SetState(s State) {
	r.state.Store(int32(s))
}
