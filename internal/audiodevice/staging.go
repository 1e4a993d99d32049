package audiodevice

import (
	"github.com/smallnest/ringbuffer"
)

// stagingBuffer is the byte-level handoff between the mixer feeder
// (producer, runs on the cooperative runtime per spec.md §4.11's
// mixer_check_interval_ms cadence) and the device callback (consumer,
// hard realtime). Frames are staged as raw interleaved float32 LE,
// independent of the negotiated device sample format; the callback
// converts on read. Redirected here from internal/decodepool (see
// DESIGN.md): once decodepool materializes a whole passage per job,
// nothing upstream of the mixer needs byte-level smoothing, but the
// frame-sized playout.Ring -> fixed-size device callback boundary still
// does.
type stagingBuffer struct {
	rb *ringbuffer.RingBuffer
}

// newStagingBuffer allocates a staging buffer sized to hold capacityFrames
// stereo float32 frames.
func newStagingBuffer(capacityFrames int) *stagingBuffer {
	if capacityFrames < 1 {
		capacityFrames = 1
	}
	return &stagingBuffer{rb: ringbuffer.New(capacityFrames * frameBytesF32)}
}

const frameBytesF32 = 8 // 2 channels * 4 bytes

// push writes as many whole bytes of b as fit, best-effort (non-blocking);
// it never blocks the mixer feeder waiting for callback drain.
func (s *stagingBuffer) push(b []byte) int {
	n, _ := s.rb.TryWrite(b)
	return n
}

// pull reads up to len(b) bytes, best-effort; any shortfall is the
// caller's responsibility to pad with silence.
func (s *stagingBuffer) pull(b []byte) int {
	n, _ := s.rb.TryRead(b)
	return n
}

// availableFrames reports how many whole stereo frames are currently
// staged, used by the mixer feeder to size its next batch against the
// 50%/75% thresholds.
func (s *stagingBuffer) availableFrames() int {
	return s.rb.Length() / frameBytesF32
}

// capacityFrames reports the staging buffer's total frame capacity.
func (s *stagingBuffer) capacityFrames() int {
	return (s.rb.Length() + s.rb.Free()) / frameBytesF32
}
