// Package ptevents carries the closed set of playback domain events
// (spec.md §4.13, supplemented per SPEC_FULL.md §C) from the engine out to
// UI/API consumers, grounded on wkmp-common/src/events.rs's WkmpEvent enum.
//
// It is a separate bus from internal/events on purpose: that bus carries
// operational error telemetry with no ordering requirement across
// consumers, while domain events must be observed in the order the engine
// produced them for a given passage (PassageStarted before
// PlaybackProgress before PassageCompleted). Structurally it is the same
// shape as internal/events/eventbus.go (buffered channel, worker pool,
// non-blocking TryPublish, panic-recovered consumer dispatch, global
// singleton Initialize/GetEventBus), but defaults to a single worker so
// that ordering guarantee actually holds; internal/events' multi-worker
// default is safe there only because its events are independent.
package ptevents

import "github.com/wkmp/wkmp-ap/internal/model"

// Kind identifies which of the closed set of domain events an Event
// carries. Consumers switch on this rather than on Go type, keeping the
// wire/JSON shape uniform across the set.
type Kind string

const (
	KindPlaybackStateChanged    Kind = "playback_state_changed"
	KindPassageStarted          Kind = "passage_started"
	KindPassageCompleted        Kind = "passage_completed"
	KindCurrentSongChanged      Kind = "current_song_changed"
	KindPlaybackProgress        Kind = "playback_progress"
	KindQueueChanged            Kind = "queue_changed"
	KindQueueStateUpdate        Kind = "queue_state_update"
	KindPassageEnqueued         Kind = "passage_enqueued"
	KindPassageDequeued         Kind = "passage_dequeued"
	KindQueueEmpty              Kind = "queue_empty"
	KindVolumeChanged           Kind = "volume_changed"
	KindBufferStateChanged      Kind = "buffer_state_changed"
	KindDeviceRecoveryAttempted Kind = "device_recovery_attempted"
	KindDeviceFellBack          Kind = "device_fell_back"
	KindDeviceAlert             Kind = "device_alert"
	KindValidationFailure       Kind = "validation_failure"
)

// EnqueueSource distinguishes how a passage entered the queue, per
// SPEC_FULL.md §C's supplement to PassageEnqueued over the original
// spec.md wording.
type EnqueueSource string

const (
	EnqueueSourceUser      EnqueueSource = "user"
	EnqueueSourceAutoFill  EnqueueSource = "auto_fill"
	EnqueueSourceRestarted EnqueueSource = "restarted"
)

// Event is the single wire shape for every kind in the closed set. Only
// the fields relevant to Kind are populated; the rest are zero values.
// A single struct (rather than one Go type per kind behind an interface)
// keeps JSON marshaling for the API layer uniform and keeps Consumer
// implementations from needing a type switch with N branches just to
// read one field.
type Event struct {
	Kind Kind

	QueueEntryID model.QueueEntryID
	PassageID    model.PassageID

	// PlaybackStateChanged
	Playing bool

	// PassageCompleted
	Completed       bool
	DurationPlayed  int64 // ticks actually played, SPEC_FULL.md §C supplement

	// PlaybackProgress
	PositionTicks int64

	// QueueChanged / QueueStateUpdate
	Entries []model.QueueEntry
	Trigger string // mirrors queueassign.ChangeTrigger's string value

	// PassageEnqueued
	Source EnqueueSource

	// VolumeChanged
	Volume float64

	// BufferStateChanged
	BufferFrom, BufferTo string

	// Device* events
	RecoveryAttempt int
	Err             error

	// ValidationFailure
	Message string
}

// Consumer receives Events from the bus. Mirrors internal/events'
// EventConsumer shape but drops batching: domain-event consumers (the
// API's SSE/WebSocket fanout) process one event at a time.
type Consumer interface {
	Name() string
	ProcessEvent(Event) error
}
