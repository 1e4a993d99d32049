// Package engine is the command loop that owns the queue/chain assigner,
// mixer, buffer manager, and decoder pool, and turns engine commands (Play,
// Pause, EnqueueFile, DequeueEntry, Skip, Reorder, Clear, SetVolume) into
// state transitions and the closed event set spec.md §4.13 names. Grounded
// on _examples/original_source/wkmp-ap/src/playback/engine.rs and
// engine/queue.rs for the command set and event-emission ordering, and on
// the teacher's internal/audiocore/manager.go for the "owns
// sources/pipelines, exposes Start/Stop" shape.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/mixer"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/playout"
	"github.com/wkmp/wkmp-ap/internal/queueassign"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

// Default tuning, per spec.md §4.13/§13.
const (
	DefaultCheckInterval      = 50 * time.Millisecond
	DefaultDevicePollInterval = 250 * time.Millisecond
	DefaultResumeRampSamples  = int64(2205) // 50ms at 44.1kHz
	advanceChanCapacity       = 4
)

// Sink receives the closed event set spec.md §4.13 names that originate
// from engine-level state transitions (queue-level events are forwarded
// from queueassign.EventSink, which Engine itself implements).
type Sink interface {
	PlaybackStateChanged(playing bool)
	PassageStarted(id model.QueueEntryID)
	PassageCompleted(id model.QueueEntryID, completed bool)
	CurrentSongChanged(id model.QueueEntryID)
	PlaybackProgress(id model.QueueEntryID, positionTicks int64)
	VolumeChanged(volume float64)

	// Queue-layer events, mirroring queueassign.EventSink exactly so a
	// single adapter (internal/ptevents.Adapter) can satisfy both this
	// interface and queueassign.EventSink. Engine itself only relays
	// these (see PassageEnqueued etc. below); it has no internal use for
	// them beyond logging.
	PassageEnqueued(entry model.QueueEntry)
	PassageDequeued(entry model.QueueEntry, trigger queueassign.ChangeTrigger)
	QueueChanged(entries []model.QueueEntry, trigger queueassign.ChangeTrigger)
	QueueEmpty()
}

// Store persists queue mutations. Optional: a nil Store means play_order is
// assigned locally (gaps of 10) instead of read back from storage. Wiring a
// real Store (internal/pstore) closes the "stale zero play_order" class of
// regression spec.md §4.12 documents.
type Store interface {
	PersistEnqueue(entry model.QueueEntry, passage model.Passage) (playOrder int64, err error)
	PersistDequeue(id model.QueueEntryID) error
	PersistReorder(entries []model.QueueEntry) error
}

// DeviceController is the narrow seam onto internal/audiodevice.Device the
// engine needs: polling the recovery flag (spec.md §4.11's "the engine
// polls this flag" contract) and applying volume changes.
type DeviceController interface {
	Poll()
	SetVolume(volume float64)
}

// generationBumper is the narrow seam onto internal/decodepool.Pool's chain-
// assignment-generation counter (spec.md §5).
type generationBumper interface {
	BumpGeneration()
}

// Runnable is a component the engine runs for its lifetime alongside its
// own command loop (e.g. internal/audiodevice.Feeder).
type Runnable interface {
	Run(ctx context.Context)
}

// Config tunes the engine's background loops.
type Config struct {
	SampleRate         int64
	CheckInterval      time.Duration
	DevicePollInterval time.Duration
	ResumeRampSamples  int64
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.DevicePollInterval <= 0 {
		c.DevicePollInterval = DefaultDevicePollInterval
	}
	if c.ResumeRampSamples <= 0 {
		c.ResumeRampSamples = DefaultResumeRampSamples
	}
}

// Engine is the command loop and event source for the playback pipeline.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	queue   *queueassign.Assigner
	buffers *buffermanager.Manager
	mixer   *mixer.Mixer
	decoder generationBumper
	device  DeviceController
	store   Store
	sink    Sink
	logger  *slog.Logger

	playing            bool
	mixerArmed         bool
	armedID            model.QueueEntryID
	crossfadeTriggered bool
	volume             float64
	playOrderCounter   int64

	advanceCh chan model.QueueEntryID
}

// New builds an Engine over already-constructed subsystems. mx's
// CompletionSink and queue's EventSink must both be set to this Engine
// (queue.SetSink(eng) / mixer.WithCompletionSink(eng)) — composition roots
// typically construct Engine first with a nil mixer pointer, then build the
// mixer with WithCompletionSink(eng), then call eng.SetMixer(mx), to break
// the constructor cycle.
func New(queue *queueassign.Assigner, buffers *buffermanager.Manager, decoder generationBumper, device DeviceController, store Store, sink Sink, cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:       cfg,
		queue:     queue,
		buffers:   buffers,
		decoder:   decoder,
		device:    device,
		store:     store,
		sink:      sink,
		logger:    logging.ForService("engine"),
		volume:    1.0,
		advanceCh: make(chan model.QueueEntryID, advanceChanCapacity),
	}
	queue.SetSink(e)
	return e
}

// SetMixer attaches the mixer. Must be called once, before Run, to close
// the constructor cycle described on New.
func (e *Engine) SetMixer(mx *mixer.Mixer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer = mx
}

// SetDevice attaches the device controller. A real internal/audiodevice.
// Device needs the mixer as its frame source, so it can only be built after
// SetMixer has already closed the engine/mixer half of the construction
// cycle; this closes the engine/device half the same way.
func (e *Engine) SetDevice(device DeviceController) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device = device
}

func (e *Engine) bumpGeneration() {
	if e.decoder != nil {
		e.decoder.BumpGeneration()
	}
}

// ---- Commands (spec.md §4.13) ----

// Play starts or resumes playback. A no-op if already playing.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = true
	cur, hasCur := e.queue.Current()
	resumeSameEntry := hasCur && e.mixerArmed && e.armedID == cur.ID
	e.mu.Unlock()

	switch {
	case !hasCur:
		// Nothing queued yet; EnqueueFile will arm the mixer once an entry
		// lands at the head of the queue.
	case resumeSameEntry:
		e.mixer.Resume(model.FadeCurveLinear, e.cfg.ResumeRampSamples)
	default:
		e.arm(cur)
	}
	e.sink.PlaybackStateChanged(true)
}

// Pause suspends playback via the mixer's pause-decay ramp. A no-op if
// already paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	armed := e.mixerArmed
	e.mu.Unlock()

	if armed {
		e.mixer.Pause()
	}
	e.sink.PlaybackStateChanged(false)
}

// arm attaches entry to the mixer as the current passage and emits
// PassageStarted/CurrentSongChanged. Must not be called while e.mu is held.
func (e *Engine) arm(entry model.QueueEntry) {
	passage, _ := e.queue.PassageFor(entry.ID)
	fadeInSamples := fadeDurationSamples(passage.Start, passage.FadeInPoint, e.cfg.SampleRate)
	e.mixer.StartPassage(entry.ID, passage.FadeInCurve, fadeInSamples)

	e.mu.Lock()
	e.mixerArmed = true
	e.armedID = entry.ID
	e.crossfadeTriggered = false
	e.mu.Unlock()

	e.sink.PassageStarted(entry.ID)
	e.sink.CurrentSongChanged(entry.ID)
}

// EnqueueFile appends path/passage to the queue, persisting it via Store
// when one is configured (and reading back the authoritative PlayOrder:
// spec.md §4.12 calls out defaulting this to zero as a known regression).
// If the queue was empty and playback is active, the new entry is armed
// immediately.
func (e *Engine) EnqueueFile(path string, passage model.Passage, fullDecode bool) (model.QueueEntryID, error) {
	entry := model.QueueEntry{ID: uuid.New(), PassageID: passage.ID, EnqueuedAt: time.Now()}

	if e.store != nil {
		order, err := e.store.PersistEnqueue(entry, passage)
		if err != nil {
			return model.QueueEntryID{}, err
		}
		entry.PlayOrder = order
	} else {
		e.mu.Lock()
		e.playOrderCounter += 10
		entry.PlayOrder = e.playOrderCounter
		e.mu.Unlock()
	}

	e.queue.Enqueue(entry, path, passage, fullDecode)
	e.bumpGeneration()

	e.mu.Lock()
	playing := e.playing
	armed := e.mixerArmed
	e.mu.Unlock()

	cur, hasCur := e.queue.Current()
	if playing && !armed && hasCur && cur.ID == entry.ID {
		e.arm(cur)
	}
	return entry.ID, nil
}

// removeEntry tears down mixer state for id if it is the armed (playing)
// entry, removes it from the queue, and arms whatever is now current if
// playback is active. skipEvent requests the PassageCompleted{completed:
// false} notification Skip uses (plain DequeueEntry of the current entry
// does not emit it, matching queue.rs's remove_queue_entry).
func (e *Engine) removeEntry(id model.QueueEntryID, trigger queueassign.ChangeTrigger, skipEvent bool) bool {
	e.mu.Lock()
	isArmed := e.mixerArmed && e.armedID == id
	e.mu.Unlock()

	if isArmed {
		if skipEvent {
			e.sink.PassageCompleted(id, false)
		}
		e.mixer.Stop()
		e.mu.Lock()
		e.mixerArmed = false
		e.mu.Unlock()
	}

	removed := e.queue.Dequeue(id, trigger)
	if !removed {
		return false
	}
	e.bumpGeneration()

	if e.store != nil {
		if err := e.store.PersistDequeue(id); err != nil {
			e.logger.Error("failed to persist queue entry removal", "queue_entry_id", id, "error", err)
		}
	}

	if isArmed {
		e.mu.Lock()
		playing := e.playing
		e.mu.Unlock()
		if cur, ok := e.queue.Current(); ok && playing {
			e.arm(cur)
		}
	}
	return true
}

// DequeueEntry removes id from the queue. Returns false if not found.
func (e *Engine) DequeueEntry(id model.QueueEntryID) bool {
	return e.removeEntry(id, queueassign.TriggerUserDequeue, false)
}

// Skip removes the current passage, emitting PassageCompleted{completed:
// false}, and starts the next one if playback is active. Returns false if
// the queue is empty.
func (e *Engine) Skip() bool {
	cur, ok := e.queue.Current()
	if !ok {
		return false
	}
	return e.removeEntry(cur.ID, queueassign.TriggerUserDequeue, true)
}

// Reorder moves id to newPosition, persisting the renumbered PlayOrders
// when a Store is configured.
func (e *Engine) Reorder(id model.QueueEntryID, newPosition int) error {
	entries, ok := e.queue.Reorder(id, newPosition)
	if !ok {
		return nil
	}
	e.bumpGeneration()
	if e.store != nil {
		return e.store.PersistReorder(entries)
	}
	return nil
}

// Clear empties the queue and stops the mixer.
func (e *Engine) Clear() {
	e.mixer.Stop()
	e.mu.Lock()
	e.mixerArmed = false
	e.mu.Unlock()
	e.queue.Clear()
	e.bumpGeneration()
}

// SetVolume clamps volume to [0,1], applies it to the device if one is
// configured, and emits VolumeChanged.
func (e *Engine) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	e.mu.Lock()
	e.volume = volume
	e.mu.Unlock()

	if e.device != nil {
		e.device.SetVolume(volume)
	}
	e.sink.VolumeChanged(volume)
}

// Volume returns the last volume set via SetVolume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// ---- queueassign.EventSink (each queue-layer callback is logged at debug
// level, then forwarded to Sink unchanged: Sink mirrors these four
// methods.) ----

func (e *Engine) PassageEnqueued(entry model.QueueEntry) {
	e.logger.Debug("passage enqueued", "queue_entry_id", entry.ID, "play_order", entry.PlayOrder)
	if e.sink != nil {
		e.sink.PassageEnqueued(entry)
	}
}

func (e *Engine) PassageDequeued(entry model.QueueEntry, trigger queueassign.ChangeTrigger) {
	e.logger.Debug("passage dequeued", "queue_entry_id", entry.ID, "trigger", trigger)
	if e.sink != nil {
		e.sink.PassageDequeued(entry, trigger)
	}
}

func (e *Engine) QueueChanged(entries []model.QueueEntry, trigger queueassign.ChangeTrigger) {
	e.logger.Debug("queue changed", "entries", len(entries), "trigger", trigger)
	if e.sink != nil {
		e.sink.QueueChanged(entries, trigger)
	}
}

func (e *Engine) QueueEmpty() {
	e.logger.Debug("queue empty")
	if e.sink != nil {
		e.sink.QueueEmpty()
	}
}

// ---- mixer.CompletionSink ----

// CrossfadeCompleted is invoked by the mixer while its own lock is held
// (both on crossfade completion and on eager exhaustion-driven
// transitions), so it must never call back into the mixer synchronously.
// It hands off to the command loop via advanceCh instead.
func (e *Engine) CrossfadeCompleted(old model.QueueEntryID) {
	select {
	case e.advanceCh <- old:
	default:
		e.logger.Warn("advance channel full, dropping crossfade-completed notification", "queue_entry_id", old)
	}
}

// handleCompletion runs on the command loop goroutine, outside the mixer's
// lock: the mixer has already internally swapped its current passage to
// whatever was "next" (no StartPassage call is needed here), so this only
// needs to retire the old entry from the queue/chain assigner and
// re-synchronize armedID to match.
func (e *Engine) handleCompletion(old model.QueueEntryID) {
	e.sink.PassageCompleted(old, true)
	e.queue.Dequeue(old, queueassign.TriggerPassageCompleted)
	e.bumpGeneration()

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.queue.Current(); ok {
		e.armedID = cur.ID
		e.mixerArmed = true
		e.crossfadeTriggered = false
	} else {
		e.mixerArmed = false
	}
}

// ---- Background loops ----

// Run drives the command loop (crossfade-trigger ticks, device polling,
// crossfade-completion handling) until ctx is canceled, alongside any
// feeders (e.g. internal/audiodevice.Feeder) passed in, all under one
// errgroup so a panic or early exit in any of them tears down the rest —
// mirroring the teacher's managerImpl.Start, modernized from its ad hoc
// sync.WaitGroup to golang.org/x/sync/errgroup.
func (e *Engine) Run(ctx context.Context, feeders ...Runnable) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx) })
	for _, f := range feeders {
		f := f
		g.Go(func() error {
			f.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	var devC <-chan time.Time
	if e.device != nil {
		devTicker := time.NewTicker(e.cfg.DevicePollInterval)
		defer devTicker.Stop()
		devC = devTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case old := <-e.advanceCh:
			e.handleCompletion(old)
		case <-ticker.C:
			e.tick()
		case <-devC:
			e.device.Poll()
		}
	}
}

// tick reports playback progress for the armed entry and, once it has
// reached its lead-out point with a ready next entry, starts the
// crossfade. Simplified relative to the original's two-passage scheduling
// arithmetic: the crossfade overlap duration is derived independently from
// each passage's own fade-out/fade-in durations rather than a shared
// lead-in/lead-out negotiation (documented in DESIGN.md).
func (e *Engine) tick() {
	e.mu.Lock()
	playing := e.playing
	armed := e.mixerArmed
	curID := e.armedID
	triggered := e.crossfadeTriggered
	e.mu.Unlock()

	if !playing || !armed {
		return
	}

	ring, ok := e.buffers.Ring(curID)
	if !ok {
		return
	}
	passage, ok := e.queue.PassageFor(curID)
	if !ok {
		return
	}

	position := ring.Position()
	positionTicks, err := tick.SamplesToTicks(position, e.cfg.SampleRate)
	if err == nil {
		e.sink.PlaybackProgress(curID, int64(positionTicks))
	}

	if triggered || e.mixer.State() != mixer.StateSingle {
		return
	}

	next, ok := e.queue.Next()
	if !ok {
		return
	}
	nextRing, ok := e.buffers.Ring(next.ID)
	if !ok {
		return
	}

	leadOutSamples := fadeDurationSamples(passage.Start, passage.LeadOutPoint, e.cfg.SampleRate)
	if position < leadOutSamples {
		return
	}

	nextPassage, ok := e.queue.PassageFor(next.ID)
	if !ok {
		return
	}
	fadeOutSamples := fadeOutDurationSamples(passage, e.cfg.SampleRate)
	fadeInSamples := fadeDurationSamples(nextPassage.Start, nextPassage.FadeInPoint, e.cfg.SampleRate)
	if fadeOutSamples <= 0 && fadeInSamples <= 0 {
		// Nothing to crossfade; drainSingleLocked's eager exhaustion switch
		// handles the transition when the current buffer runs out.
		return
	}

	// The ring exists as soon as Submit registers it, long before its
	// decoder has produced anything; starting a crossfade into a ring that
	// hasn't buffered its own fade-in yet drains silence for the whole
	// overlap. Wait until it's StateReady or already holds at least the
	// incoming fade-in's frames, mirroring the original's gate on
	// BufferStatus::Ready.
	if nextRing.State() != playout.StateReady && nextRing.OccupiedFrames() < fadeInSamples {
		return
	}

	if err := e.mixer.StartCrossfade(next.ID, passage.FadeOutCurve, fadeOutSamples, nextPassage.FadeInCurve, fadeInSamples); err != nil {
		e.logger.Warn("crossfade start failed", "error", err, "from", curID, "to", next.ID)
		return
	}
	e.mu.Lock()
	e.crossfadeTriggered = true
	e.mu.Unlock()
}

func fadeDurationSamples(start, point tick.Tick, sampleRate int64) int64 {
	if point <= start {
		return 0
	}
	return tick.TicksToSamples(point-start, sampleRate)
}

func fadeOutDurationSamples(p model.Passage, sampleRate int64) int64 {
	if p.End == nil || *p.End <= p.FadeOutPoint {
		return 0
	}
	return tick.TicksToSamples(*p.End-p.FadeOutPoint, sampleRate)
}
