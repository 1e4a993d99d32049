package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/mixer"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/queueassign"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDecoder struct {
	mu          sync.Mutex
	submissions int
	bumps       int
}

func (f *fakeDecoder) Submit(model.QueueEntryID, string, model.Passage, model.DecodePriority, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions++
	return nil
}

func (f *fakeDecoder) BumpGeneration() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumps++
}

type fakeSink struct {
	mu               sync.Mutex
	playingEvents    []bool
	started          []model.QueueEntryID
	completed        []struct {
		id        model.QueueEntryID
		completed bool
	}
	currentSong []model.QueueEntryID
	progress    int
	volume      []float64
}

func (f *fakeSink) PlaybackStateChanged(playing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playingEvents = append(f.playingEvents, playing)
}

func (f *fakeSink) PassageStarted(id model.QueueEntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakeSink) PassageCompleted(id model.QueueEntryID, completed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, struct {
		id        model.QueueEntryID
		completed bool
	}{id, completed})
}

func (f *fakeSink) CurrentSongChanged(id model.QueueEntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentSong = append(f.currentSong, id)
}

func (f *fakeSink) PlaybackProgress(model.QueueEntryID, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress++
}

func (f *fakeSink) VolumeChanged(volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = append(f.volume, volume)
}

func (f *fakeSink) PassageEnqueued(model.QueueEntry) {}

func (f *fakeSink) PassageDequeued(model.QueueEntry, queueassign.ChangeTrigger) {}

func (f *fakeSink) QueueChanged([]model.QueueEntry, queueassign.ChangeTrigger) {}

func (f *fakeSink) QueueEmpty() {}

type fakeDevice struct {
	mu     sync.Mutex
	polls  int
	volume float64
}

func (f *fakeDevice) Poll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
}

func (f *fakeDevice) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func newTestEngine(t *testing.T) (*Engine, *fakeDecoder, *fakeSink) {
	t.Helper()
	dec := &fakeDecoder{}
	buffers := buffermanager.New()
	queue := queueassign.New(dec, buffers, queueassign.WithMaxChains(4))
	sink := &fakeSink{}

	eng := New(queue, buffers, dec, nil, nil, sink, Config{SampleRate: 44100})
	mx := mixer.New(buffers, 44100, mixer.WithCompletionSink(eng))
	eng.SetMixer(mx)
	return eng, dec, sink
}

func passageFor(id model.PassageID) model.Passage {
	return model.Passage{
		ID:           id,
		FadeInPoint:  0,
		LeadInPoint:  0,
		LeadOutPoint: 1_000_000,
		FadeOutPoint: 1_000_000,
	}
}

func TestPlayArmsCurrentEntryAndEmitsEvents(t *testing.T) {
	eng, _, sink := newTestEngine(t)

	passageID := uuid.New()
	id, err := eng.EnqueueFile("a.flac", passageFor(passageID), false)
	require.NoError(t, err)

	eng.Play()

	assert.Equal(t, mixer.StateSingle, eng.mixer.State())
	assert.Equal(t, []bool{true}, sink.playingEvents)
	require.Len(t, sink.started, 1)
	assert.Equal(t, id, sink.started[0])
	require.Len(t, sink.currentSong, 1)
	assert.Equal(t, id, sink.currentSong[0])
}

func TestPlayWhileAlreadyArmedDoesNotRestartPassage(t *testing.T) {
	eng, _, sink := newTestEngine(t)

	passageID := uuid.New()
	_, err := eng.EnqueueFile("a.flac", passageFor(passageID), false)
	require.NoError(t, err)

	eng.Play()
	eng.Pause()
	eng.Play()

	assert.Len(t, sink.started, 1, "resuming should not re-arm the passage")
	assert.Equal(t, []bool{true, false, true}, sink.playingEvents)
}

func TestEnqueueFileArmsWhenQueueWasEmptyAndPlaying(t *testing.T) {
	eng, _, sink := newTestEngine(t)
	eng.Play()
	assert.Empty(t, sink.started)

	passageID := uuid.New()
	id, err := eng.EnqueueFile("a.flac", passageFor(passageID), false)
	require.NoError(t, err)

	require.Len(t, sink.started, 1)
	assert.Equal(t, id, sink.started[0])
}

func TestSkipOnEmptyQueueReturnsFalse(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	assert.False(t, eng.Skip())
}

func TestSkipRemovesCurrentAndArmsNext(t *testing.T) {
	eng, _, sink := newTestEngine(t)

	id1, err := eng.EnqueueFile("a.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)
	id2, err := eng.EnqueueFile("b.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)

	eng.Play()
	require.Len(t, sink.started, 1)

	removed := eng.Skip()
	require.True(t, removed)

	require.Len(t, sink.completed, 1)
	assert.Equal(t, id1, sink.completed[0].id)
	assert.False(t, sink.completed[0].completed)

	require.Len(t, sink.started, 2)
	assert.Equal(t, id2, sink.started[1])

	cur, ok := eng.queue.Current()
	require.True(t, ok)
	assert.Equal(t, id2, cur.ID)
}

func TestDequeueNonCurrentEntryDoesNotEmitPassageCompleted(t *testing.T) {
	eng, _, sink := newTestEngine(t)

	_, err := eng.EnqueueFile("a.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)
	id2, err := eng.EnqueueFile("b.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)

	eng.Play()
	removed := eng.DequeueEntry(id2)
	require.True(t, removed)
	assert.Empty(t, sink.completed)
}

func TestDequeueUnknownEntryReturnsFalse(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	assert.False(t, eng.DequeueEntry(uuid.New()))
}

func TestClearStopsMixerAndEmptiesQueue(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.EnqueueFile("a.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)
	eng.Play()

	eng.Clear()

	assert.Equal(t, 0, eng.queue.Len())
	assert.Equal(t, mixer.StateSingle, eng.mixer.State())
	_, hasCur := eng.queue.Current()
	assert.False(t, hasCur)
}

func TestSetVolumeClampsAndForwardsToDevice(t *testing.T) {
	dec := &fakeDecoder{}
	buffers := buffermanager.New()
	queue := queueassign.New(dec, buffers, queueassign.WithMaxChains(4))
	sink := &fakeSink{}
	dev := &fakeDevice{}

	eng := New(queue, buffers, dec, dev, nil, sink, Config{SampleRate: 44100})
	mx := mixer.New(buffers, 44100, mixer.WithCompletionSink(eng))
	eng.SetMixer(mx)

	eng.SetVolume(1.5)
	assert.InDelta(t, 1.0, eng.Volume(), 1e-9)
	assert.InDelta(t, 1.0, dev.volume, 1e-9)

	eng.SetVolume(-0.5)
	assert.InDelta(t, 0.0, eng.Volume(), 1e-9)
	require.Len(t, sink.volume, 2)
}

func TestHandleCompletionResyncsArmedIDToNewCurrent(t *testing.T) {
	eng, _, sink := newTestEngine(t)

	id1, err := eng.EnqueueFile("a.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)
	id2, err := eng.EnqueueFile("b.flac", passageFor(uuid.New()), false)
	require.NoError(t, err)

	eng.Play()
	require.Equal(t, id1, eng.armedID)

	// Simulate the mixer having already internally swapped current -> next
	// (as drainSingleLocked/completeCrossfadeLocked do) before notifying.
	eng.handleCompletion(id1)

	require.Len(t, sink.completed, 1)
	assert.Equal(t, id1, sink.completed[0].id)
	assert.True(t, sink.completed[0].completed)

	assert.Equal(t, id2, eng.armedID)
	assert.True(t, eng.mixerArmed)
	_, stillQueued := eng.queue.ChainFor(id1)
	assert.False(t, stillQueued)
}

func TestTickDoesNotCrossfadeIntoUnbufferedNextEntry(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	endTick := tick.Tick(1_000_000)
	curID, err := eng.EnqueueFile("a.flac", model.Passage{
		End:          &endTick,
		LeadOutPoint: 0,
		FadeOutPoint: 0,
	}, false)
	require.NoError(t, err)
	nextID, err := eng.EnqueueFile("b.flac", model.Passage{
		FadeInPoint: 1_000_000,
	}, false)
	require.NoError(t, err)

	// fakeDecoder never registers a buffer the way decodepool.Pool's
	// Submit does; register both explicitly so tick can see the next
	// entry's ring exists but is still empty.
	eng.buffers.RegisterDecoding(curID)
	eng.buffers.RegisterDecoding(nextID)

	eng.Play()

	eng.tick()
	assert.Equal(t, mixer.StateSingle, eng.mixer.State(),
		"must not crossfade into a next buffer holding no audio yet")

	nextRing, ok := eng.buffers.Ring(nextID)
	require.True(t, ok)
	fadeInFrames := tick.TicksToSamples(1_000_000, eng.cfg.SampleRate)
	nextRing.PushSamples(make([]float32, 2*fadeInFrames))

	eng.tick()
	assert.Equal(t, mixer.StateCrossfading, eng.mixer.State(),
		"once the next buffer holds at least its own fade-in, the crossfade may start")
}
