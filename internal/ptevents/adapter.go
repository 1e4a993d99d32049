package ptevents

import (
	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/queueassign"
)

// Adapter translates the narrow, per-package Sink/EventSink/HealthSink
// callback interfaces (engine.Sink, queueassign.EventSink,
// buffermanager.Sink, audiodevice.HealthSink) into Events on a Bus. It
// depends on those packages only for their callback parameter types, not
// the other way around — engine/queueassign/buffermanager never import
// ptevents, so wiring a real consumer never risks an import cycle with
// the playback core.
//
// Adapter implements each Sink interface structurally; callers compose-root
// wire it in without this package importing audiodevice, whose HealthSink
// uses only built-in parameter types.
type Adapter struct {
	bus *Bus
}

// NewAdapter wraps bus for use as a Sink/EventSink/HealthSink.
func NewAdapter(bus *Bus) *Adapter {
	return &Adapter{bus: bus}
}

// engine.Sink

func (a *Adapter) PlaybackStateChanged(playing bool) {
	a.bus.TryPublish(Event{Kind: KindPlaybackStateChanged, Playing: playing})
}

func (a *Adapter) PassageStarted(id model.QueueEntryID) {
	a.bus.TryPublish(Event{Kind: KindPassageStarted, QueueEntryID: id})
}

func (a *Adapter) PassageCompleted(id model.QueueEntryID, completed bool) {
	a.bus.TryPublish(Event{Kind: KindPassageCompleted, QueueEntryID: id, Completed: completed})
}

func (a *Adapter) CurrentSongChanged(id model.QueueEntryID) {
	a.bus.TryPublish(Event{Kind: KindCurrentSongChanged, QueueEntryID: id})
}

func (a *Adapter) PlaybackProgress(id model.QueueEntryID, positionTicks int64) {
	a.bus.TryPublish(Event{Kind: KindPlaybackProgress, QueueEntryID: id, PositionTicks: positionTicks})
}

func (a *Adapter) VolumeChanged(volume float64) {
	a.bus.TryPublish(Event{Kind: KindVolumeChanged, Volume: volume})
}

// queueassign.EventSink

func (a *Adapter) PassageEnqueued(entry model.QueueEntry) {
	a.bus.TryPublish(Event{
		Kind:         KindPassageEnqueued,
		QueueEntryID: entry.ID,
		PassageID:    entry.PassageID,
		Source:       EnqueueSourceUser,
	})
}

func (a *Adapter) PassageDequeued(entry model.QueueEntry, trigger queueassign.ChangeTrigger) {
	a.bus.TryPublish(Event{
		Kind:         KindPassageDequeued,
		QueueEntryID: entry.ID,
		PassageID:    entry.PassageID,
		Trigger:      string(trigger),
	})
}

func (a *Adapter) QueueChanged(entries []model.QueueEntry, trigger queueassign.ChangeTrigger) {
	a.bus.TryPublish(Event{
		Kind:    KindQueueChanged,
		Entries: entries,
		Trigger: string(trigger),
	})
}

func (a *Adapter) QueueEmpty() {
	a.bus.TryPublish(Event{Kind: KindQueueEmpty})
}

// buffermanager.Sink

func (a *Adapter) BufferStateChanged(ev buffermanager.TransitionEvent) {
	a.bus.TryPublish(Event{
		Kind:         KindBufferStateChanged,
		QueueEntryID: ev.QueueEntryID,
		BufferFrom:   ev.From.String(),
		BufferTo:     ev.To.String(),
	})
}

// audiodevice.HealthSink

func (a *Adapter) DeviceRecoveryAttempted(attempt int) {
	a.bus.TryPublish(Event{Kind: KindDeviceRecoveryAttempted, RecoveryAttempt: attempt})
}

func (a *Adapter) DeviceFellBack() {
	a.bus.TryPublish(Event{Kind: KindDeviceFellBack})
}

func (a *Adapter) DeviceAlert(err error) {
	a.bus.TryPublish(Event{Kind: KindDeviceAlert, Err: err})
}

// validation.Sink

func (a *Adapter) ValidationFailure(message string) {
	a.bus.TryPublish(Event{Kind: KindValidationFailure, Message: message})
}
