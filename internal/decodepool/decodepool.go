// Package decodepool is the serial decoder: a single worker goroutine that
// decodes one passage at a time, priority-ordered, yielding between chunks
// to service higher-priority work and to respect the buffer manager's
// pause/resume backpressure. Grounded on
// _examples/original_source/wkmp-ap/src/playback/serial_decoder.rs,
// translated from std::thread + Condvar + BinaryHeap to goroutine +
// sync.Cond + container/heap.
package decodepool

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Default tuning, per spec.md §4.7/§13.
const (
	DefaultChunkSizeSamples = 8192
	DefaultWorkPeriod       = 5 * time.Second
	defaultWorkingRate      = 44100

	// pausePollInterval bounds how long a parked job can wait before its
	// buffer's drain state is re-checked. The original's buffer manager has
	// no signal-on-drain hook for the decoder to block on, so polling
	// stands in for the Condvar the Rust worker would otherwise use here.
	pausePollInterval = 50 * time.Millisecond
)

// Pool is the serial decoder.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	paused map[model.QueueEntryID]*Job
	active map[model.QueueEntryID]struct{} // flooding-fix: jobs live in exactly one of heap/paused/in-flight
	nextSeq int64
	stopped bool

	chainGen atomic.Int64

	// framesPushed accumulates the stereo frame count the decoder has
	// actually had accepted into a buffer (i.e. buffermanager's own return
	// value, not the chunk size offered), for internal/validation's
	// conservation check (spec.md §8 property 10): this must track
	// buffermanager's accepted-frame counter exactly, since a ring only
	// ever returns short when it's near full and the caller is expected to
	// retry the remainder rather than drop it.
	framesPushed atomic.Int64

	buffers     *buffermanager.Manager
	workingRate int64
	chunkSize   int
	workPeriod  time.Duration

	wg     sync.WaitGroup
	logger *slog.Logger
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithChunkSize overrides the default push-chunk size, in frames.
func WithChunkSize(frames int) Option {
	return func(p *Pool) { p.chunkSize = frames }
}

// WithWorkPeriod overrides the minimum elapsed time between priority
// re-checks absent a generation bump.
func WithWorkPeriod(d time.Duration) Option {
	return func(p *Pool) { p.workPeriod = d }
}

// WithWorkingRate overrides the working sample rate decoded audio is
// resampled to before buffering.
func WithWorkingRate(rate int64) Option {
	return func(p *Pool) { p.workingRate = rate }
}

// New starts a serial decoder backed by buffers. Call Shutdown to stop the
// worker goroutine.
func New(buffers *buffermanager.Manager, opts ...Option) *Pool {
	p := &Pool{
		paused:      make(map[model.QueueEntryID]*Job),
		active:      make(map[model.QueueEntryID]struct{}),
		buffers:     buffers,
		workingRate: defaultWorkingRate,
		chunkSize:   DefaultChunkSizeSamples,
		workPeriod:  DefaultWorkPeriod,
		logger:      logging.ForService("decodepool"),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.workerLoop()
	return p
}

// Submit enqueues a decode request. Registering the buffer before pushing
// to the heap is the flooding-fix invariant from spec.md §4.7: a racing
// duplicate submission for the same queue entry observes "already managed"
// and is dropped, so the heap never holds two live requests for one
// queue_entry_id.
func (p *Pool) Submit(id model.QueueEntryID, path string, passage model.Passage, priority model.DecodePriority, fullDecode bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return perrors.New(fmt.Errorf("decodepool: submit after shutdown")).Category(perrors.CategoryDecode).Build()
	}
	if _, ok := p.active[id]; ok {
		return nil // already managed; duplicate submission dropped
	}

	p.buffers.RegisterDecoding(id)
	p.active[id] = struct{}{}

	job := &Job{
		QueueEntryID: id,
		Passage:      passage,
		Path:         path,
		Priority:     priority,
		FullDecode:   fullDecode,
		seq:          p.nextSeq,
	}
	p.nextSeq++
	heap.Push(&p.heap, job)
	p.cond.Signal()
	return nil
}

// BumpGeneration notifies the worker that chain assignments changed, forcing
// an immediate priority re-check on its next between-chunk checkpoint
// instead of waiting out the full work period.
func (p *Pool) BumpGeneration() {
	p.chainGen.Add(1)
}

// Shutdown stops the worker after its current chunk and waits for it to
// exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// QueueLen reports the number of jobs waiting in the priority heap
// (diagnostics only; excludes parked and in-flight jobs).
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heap)
}

// FramesPushed returns the cumulative count of stereo frames the decoder
// has had accepted into a buffer across every passage this pool has
// decoded, for internal/validation's pipeline conservation check.
func (p *Pool) FramesPushed() int64 {
	return p.framesPushed.Load()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.runJob(job)
	}
}

// next blocks until a job is ready: a parked job whose buffer has drained
// below the resume threshold, a fresh heap entry, or shutdown.
func (p *Pool) next() (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if job := p.pickResumableLocked(); job != nil {
			return job, true
		}
		if len(p.heap) > 0 {
			return heap.Pop(&p.heap).(*Job), true
		}
		if p.stopped {
			return nil, false
		}
		if len(p.paused) > 0 {
			p.mu.Unlock()
			time.Sleep(pausePollInterval)
			p.mu.Lock()
			continue
		}
		p.cond.Wait()
	}
}

// pickResumableLocked returns (and removes from paused) the
// highest-priority parked job whose buffer can resume, or nil. Caller must
// hold p.mu.
func (p *Pool) pickResumableLocked() *Job {
	var best *Job
	for _, j := range p.paused {
		if !p.buffers.CanDecoderResume(j.QueueEntryID) {
			continue
		}
		if best == nil || j.Priority < best.Priority || (j.Priority == best.Priority && j.seq < best.seq) {
			best = j
		}
	}
	if best != nil {
		delete(p.paused, best.QueueEntryID)
	}
	return best
}

// runJob decodes (if not already cached from a prior attempt) and pushes
// job's samples in chunks, yielding to a higher-priority waiter or parking
// on backpressure between chunks, per spec.md §4.7 steps 3-8.
func (p *Pool) runJob(job *Job) {
	if job.decoded == nil {
		decoded, err := decodePassage(job.Path, job.Passage, p.workingRate)
		if err != nil {
			p.logger.Error("decode failed", "queue_entry_id", job.QueueEntryID, "path", job.Path, "error", err)
			p.buffers.Release(job.QueueEntryID)
			p.forget(job.QueueEntryID)
			return
		}
		job.decoded = decoded.samples
		job.decodedTotalFrames = decoded.totalFrames
		if decoded.hasDiscovered {
			p.buffers.SetDiscoveredEndpoint(job.QueueEntryID, int64(decoded.discoveredEnd))
		}
	}

	lastSwitch := time.Now()
	lastSeenGen := p.chainGen.Load()
	cursor := job.ResumeOffsetSamples

	for cursor < job.decodedTotalFrames {
		gen := p.chainGen.Load()
		if gen != lastSeenGen || time.Since(lastSwitch) >= p.workPeriod {
			lastSwitch = time.Now()
			lastSeenGen = gen
			if p.shouldYield(job.Priority) {
				job.ResumeOffsetSamples = cursor
				p.requeue(job)
				return
			}
		}

		if p.buffers.ShouldDecoderPause(job.QueueEntryID) {
			job.ResumeOffsetSamples = cursor
			p.park(job)
			return
		}

		end := cursor + int64(p.chunkSize)
		if end > job.decodedTotalFrames {
			end = job.decodedTotalFrames
		}
		chunk := job.decoded[cursor*2 : end*2]
		pushed := p.buffers.PushSamples(job.QueueEntryID, chunk)
		p.framesPushed.Add(int64(pushed))
		if int64(pushed) < end-cursor {
			p.logger.Warn("partial chunk write, buffer full", "queue_entry_id", job.QueueEntryID,
				"requested", end-cursor, "pushed", pushed)
		}
		// The ring accepted fewer frames than offered whenever free space
		// falls inside (headroom, chunkSize]; cursor must only advance by
		// what was actually written; the loop's top re-checks
		// ShouldDecoderPause before retrying the remainder, mirroring the
		// original's blocking push_samples().await semantics in this
		// non-blocking port.
		cursor += int64(pushed)
	}

	p.buffers.FinalizeBuffer(job.QueueEntryID, job.decodedTotalFrames)
	p.forget(job.QueueEntryID)
	p.logger.Debug("decode complete", "queue_entry_id", job.QueueEntryID, "frames", job.decodedTotalFrames)
}

func (p *Pool) shouldYield(current model.DecodePriority) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.heap) == 0 {
		return false
	}
	return p.heap[0].Priority < current
}

func (p *Pool) requeue(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	heap.Push(&p.heap, job)
}

func (p *Pool) park(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[job.QueueEntryID] = job
}

func (p *Pool) forget(id model.QueueEntryID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}
