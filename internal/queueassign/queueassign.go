// Package queueassign owns the in-memory playback queue and the mapping
// of queue entries to decoder-buffer "chains" (at most maximum_decode_streams
// of them). Grounded on
// _examples/original_source/wkmp-ap/src/playback/engine/queue.rs and
// decoder_pool.rs: the release-before-reassign ordering on removal and the
// storage-assigns-play_order-then-reload-it pattern are both called out as
// regression classes there and in spec.md §4.12/§9, and are preserved here.
package queueassign

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/model"
)

// DefaultMaxChains is maximum_decode_streams' default, per spec.md §3/§13.
const DefaultMaxChains = 12

// ChangeTrigger names why the queue changed, mirrored into QueueChanged/
// PassageDequeued events per spec.md §4.13's closed event set.
type ChangeTrigger string

const (
	TriggerUserEnqueue      ChangeTrigger = "user_enqueue"
	TriggerUserDequeue      ChangeTrigger = "user_dequeue"
	TriggerPassageCompleted ChangeTrigger = "passage_completed"
	TriggerReorder          ChangeTrigger = "reorder"
)

// decoder is the narrow seam onto internal/decodepool.Pool needed here,
// following the interface-seam pattern established by
// buffermanager.Sink/hashdedup.Store.
type decoder interface {
	Submit(id model.QueueEntryID, path string, passage model.Passage, priority model.DecodePriority, fullDecode bool) error
}

// bufferReleaser is the narrow seam onto internal/buffermanager.Manager.
type bufferReleaser interface {
	Release(id model.QueueEntryID)
}

// EventSink receives queue lifecycle notifications. The engine adapts this
// onto the broader domain event bus; queueassign itself knows nothing about
// transport.
type EventSink interface {
	PassageEnqueued(entry model.QueueEntry)
	PassageDequeued(entry model.QueueEntry, trigger ChangeTrigger)
	QueueChanged(entries []model.QueueEntry, trigger ChangeTrigger)
	QueueEmpty()
}

// item is one queue entry plus the data needed to (re)submit a decode
// request for it.
type item struct {
	entry      model.QueueEntry
	path       string
	passage    model.Passage
	fullDecode bool
}

// Assigner is the queue + chain assigner described by spec.md §4.12.
// Invariants maintained at every method return: (Q1) entries is ordered by
// PlayOrder; (Q2) len(chains) <= maxChains; (Q3) chains maps 1:1 onto a
// live entry; (Q4) every entry holds a chain iff one was free when it was
// considered.
type Assigner struct {
	mu sync.Mutex

	maxChains int
	chainUsed []bool
	chains    map[model.QueueEntryID]model.ChainIndex

	entries []item

	decoder decoder
	buffers bufferReleaser
	sink    EventSink
	logger  *slog.Logger
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithMaxChains overrides DefaultMaxChains.
func WithMaxChains(n int) Option {
	return func(a *Assigner) { a.maxChains = n }
}

// WithSink installs the event sink.
func WithSink(sink EventSink) Option {
	return func(a *Assigner) { a.sink = sink }
}

// SetSink installs or replaces the event sink after construction. Exists so
// a composition root can break the constructor cycle where the sink (e.g.
// the engine) itself needs a reference to this Assigner before it can be
// built.
func (a *Assigner) SetSink(sink EventSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// New builds an Assigner bound to the given decoder submitter and buffer
// releaser.
func New(decoder decoder, buffers bufferReleaser, opts ...Option) *Assigner {
	a := &Assigner{
		maxChains: DefaultMaxChains,
		chains:    make(map[model.QueueEntryID]model.ChainIndex),
		decoder:   decoder,
		buffers:   buffers,
		logger:    logging.ForService("queueassign"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.chainUsed = make([]bool, a.maxChains)
	return a
}

// priorityForPosition maps a queue position to a decode priority: current
// (position 0) is Immediate, next (position 1) is Next, everything else is
// Prefetch, per spec.md §4.7/§4.12.
func priorityForPosition(position int) model.DecodePriority {
	switch position {
	case 0:
		return model.PriorityImmediate
	case 1:
		return model.PriorityNext
	default:
		return model.PriorityPrefetch
	}
}

// acquireChainLocked returns the lowest-numbered free chain index, or false
// if all maxChains are in use.
func (a *Assigner) acquireChainLocked() (model.ChainIndex, bool) {
	for i, used := range a.chainUsed {
		if !used {
			a.chainUsed[i] = true
			return model.ChainIndex(i), true
		}
	}
	return 0, false
}

func (a *Assigner) releaseChainLocked(idx model.ChainIndex) {
	a.chainUsed[idx] = false
}

// indexOfLocked finds an entry's position in the ordered slice.
func (a *Assigner) indexOfLocked(id model.QueueEntryID) (int, bool) {
	for i, it := range a.entries {
		if it.entry.ID == id {
			return i, true
		}
	}
	return 0, false
}

// assignChainLocked tries to give entries[idx] a chain and submit a decode
// request at the priority its position implies. A no-op if it already has
// one. Returns false only when no chain is free.
func (a *Assigner) assignChainLocked(idx int) bool {
	it := a.entries[idx]
	if _, ok := a.chains[it.entry.ID]; ok {
		return true
	}
	chainIdx, ok := a.acquireChainLocked()
	if !ok {
		return false
	}
	priority := priorityForPosition(idx)
	if err := a.decoder.Submit(it.entry.ID, it.path, it.passage, priority, it.fullDecode); err != nil {
		a.releaseChainLocked(chainIdx)
		a.logger.Warn("decode submission failed, chain not assigned",
			"queue_entry_id", it.entry.ID, "error", err)
		return false
	}
	a.chains[it.entry.ID] = chainIdx
	return true
}

// assignUnassignedLocked scans entries in priority order, handing any free
// chains to waiting entries. Called after a removal is fully applied to the
// in-memory queue, per spec.md §4.12's documented removal/reassignment
// ordering (reversing this relative to removal reassigns the freed chain to
// the entry being removed).
func (a *Assigner) assignUnassignedLocked() {
	for i := range a.entries {
		if !a.assignChainLocked(i) {
			return
		}
	}
}

func (a *Assigner) entriesLocked() []model.QueueEntry {
	out := make([]model.QueueEntry, len(a.entries))
	for i, it := range a.entries {
		out[i] = it.entry
	}
	return out
}

// Enqueue adds an entry to the end of the queue (storage has already
// assigned the authoritative PlayOrder; the caller must reload it into
// entry.PlayOrder before calling this — a known regression class is
// defaulting it to zero instead). Tries to assign a free chain and submit a
// decode request immediately.
func (a *Assigner) Enqueue(entry model.QueueEntry, path string, passage model.Passage, fullDecode bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, item{entry: entry, path: path, passage: passage, fullDecode: fullDecode})
	sort.SliceStable(a.entries, func(i, j int) bool {
		return a.entries[i].entry.PlayOrder < a.entries[j].entry.PlayOrder
	})

	if idx, ok := a.indexOfLocked(entry.ID); ok {
		a.assignChainLocked(idx)
	}

	if a.sink != nil {
		a.sink.PassageEnqueued(entry)
		a.sink.QueueChanged(a.entriesLocked(), TriggerUserEnqueue)
	}
}

// releaseLocked tears down an entry's chain (if any) and its buffer.
func (a *Assigner) releaseLocked(id model.QueueEntryID) {
	if idx, ok := a.chains[id]; ok {
		delete(a.chains, id)
		a.releaseChainLocked(idx)
	}
	a.buffers.Release(id)
}

// Dequeue removes an entry (skip, user delete, or passage completion): the
// chain is released and the entry removed from the queue before any freed
// chain is handed to a waiting entry, matching spec.md §4.12's (1) release
// (2) remove (3) reassign ordering. Returns false if the entry was not
// found.
func (a *Assigner) Dequeue(id model.QueueEntryID, trigger ChangeTrigger) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.indexOfLocked(id)
	if !ok {
		return false
	}
	removed := a.entries[idx].entry

	a.releaseLocked(id)
	a.entries = append(a.entries[:idx], a.entries[idx+1:]...)
	a.assignUnassignedLocked()

	if a.sink != nil {
		a.sink.PassageDequeued(removed, trigger)
		a.sink.QueueChanged(a.entriesLocked(), trigger)
		if len(a.entries) == 0 {
			a.sink.QueueEmpty()
		}
	}
	return true
}

// Clear removes every entry, releasing all chains and buffers.
func (a *Assigner) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, it := range a.entries {
		a.releaseLocked(it.entry.ID)
	}
	a.entries = nil

	if a.sink != nil {
		a.sink.QueueChanged(nil, TriggerUserDequeue)
		a.sink.QueueEmpty()
	}
}

// Reorder moves an entry to newPosition (0-based, clamped to the current
// queue bounds) and renumbers PlayOrder with gaps of 10, matching storage's
// insertion-friendly numbering scheme. Chain assignments are preserved
// across the move — reordering changes position, not passage identity, per
// queue.rs's explicit "restore chain assignments after reload" comment.
// Returns the updated, renumbered entries for the caller to persist.
func (a *Assigner) Reorder(id model.QueueEntryID, newPosition int) ([]model.QueueEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.indexOfLocked(id)
	if !ok {
		return nil, false
	}
	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition > len(a.entries)-1 {
		newPosition = len(a.entries) - 1
	}

	it := a.entries[idx]
	a.entries = append(a.entries[:idx], a.entries[idx+1:]...)
	a.entries = append(a.entries[:newPosition], append([]item{it}, a.entries[newPosition:]...)...)

	for i := range a.entries {
		a.entries[i].entry.PlayOrder = int64(i+1) * 10
	}

	entries := a.entriesLocked()
	if a.sink != nil {
		a.sink.QueueChanged(entries, TriggerReorder)
	}
	return entries, true
}

// Entries returns a snapshot of the queue in play order.
func (a *Assigner) Entries() []model.QueueEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entriesLocked()
}

// Current returns the entry at queue position 0, if any.
func (a *Assigner) Current() (model.QueueEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return model.QueueEntry{}, false
	}
	return a.entries[0].entry, true
}

// Next returns the entry at queue position 1, if any.
func (a *Assigner) Next() (model.QueueEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) < 2 {
		return model.QueueEntry{}, false
	}
	return a.entries[1].entry, true
}

// Len returns the number of live queue entries.
func (a *Assigner) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// PassageFor returns the passage timing data submitted alongside id's
// enqueue, for callers (the engine's crossfade-trigger logic) that need it
// without keeping a second copy.
func (a *Assigner) PassageFor(id model.QueueEntryID) (model.Passage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.indexOfLocked(id); ok {
		return a.entries[idx].passage, true
	}
	return model.Passage{}, false
}

// ChainFor reports the chain index assigned to id, if any.
func (a *Assigner) ChainFor(id model.QueueEntryID) (model.ChainIndex, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.chains[id]
	return idx, ok
}

// ChainCount returns the number of chains currently in use, for the
// conservation check spec.md §8 property 7 names
// (|chains| = min(|live entries|, maxChains)).
func (a *Assigner) ChainCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chains)
}
