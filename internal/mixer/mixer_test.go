package mixer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/playout"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRings is a minimal RingProvider backed by a plain map, for driving
// the mixer deterministically in tests without a real buffer manager.
type fakeRings struct {
	rings map[model.QueueEntryID]*playout.Ring
}

func newFakeRings() *fakeRings {
	return &fakeRings{rings: make(map[model.QueueEntryID]*playout.Ring)}
}

func (f *fakeRings) Ring(id model.QueueEntryID) (*playout.Ring, bool) {
	r, ok := f.rings[id]
	return r, ok
}

func (f *fakeRings) add(id model.QueueEntryID, frames int) *playout.Ring {
	r := playout.New(frames + 1)
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		samples[2*i] = 1.0
		samples[2*i+1] = 1.0
	}
	r.PushSamples(samples)
	r.Finalize(int64(frames))
	f.rings[id] = r
	return r
}

func TestStartPassageEntersSingleState(t *testing.T) {
	rings := newFakeRings()
	id := uuid.New()
	rings.add(id, 100)

	m := New(rings, 44100)
	m.StartPassage(id, model.FadeCurveLinear, 0)
	assert.Equal(t, StateSingle, m.State())

	out := m.ProcessAudio(10)
	require.Len(t, out, 10)
	for _, f := range out {
		assert.Equal(t, float32(1.0), f.L)
		assert.Equal(t, float32(1.0), f.R)
	}
}

func TestProcessAudioPadsSilenceWithNoCurrentPassage(t *testing.T) {
	rings := newFakeRings()
	m := New(rings, 44100)

	out := m.ProcessAudio(5)
	require.Len(t, out, 5)
	for _, f := range out {
		assert.Equal(t, float32(0), f.L)
		assert.Equal(t, float32(0), f.R)
	}
}

func TestStartCrossfadeRequiresCurrentPassage(t *testing.T) {
	rings := newFakeRings()
	m := New(rings, 44100)
	err := m.StartCrossfade(uuid.New(), model.FadeCurveLinear, 100, model.FadeCurveLinear, 100)
	require.Error(t, err)
}

func TestStartCrossfadeRejectsDegenerateDuration(t *testing.T) {
	rings := newFakeRings()
	id := uuid.New()
	rings.add(id, 100)
	m := New(rings, 44100)
	m.StartPassage(id, model.FadeCurveLinear, 0)

	err := m.StartCrossfade(uuid.New(), model.FadeCurveLinear, 0, model.FadeCurveLinear, 0)
	require.Error(t, err)
}

func TestCrossfadeCompletesAndNotifiesSink(t *testing.T) {
	rings := newFakeRings()
	idA := uuid.New()
	idB := uuid.New()
	rings.add(idA, 50)
	rings.add(idB, 200)

	sink := &recordingSink{}
	m := New(rings, 44100, WithCompletionSink(sink))
	m.StartPassage(idA, model.FadeCurveLinear, 0)

	require.NoError(t, m.StartCrossfade(idB, model.FadeCurveLinear, 20, model.FadeCurveLinear, 20))
	assert.Equal(t, StateCrossfading, m.State())

	out := m.ProcessAudio(20)
	require.Len(t, out, 20)
	assert.Equal(t, StateSingle, m.State())
	require.Len(t, sink.completed, 1)
	assert.Equal(t, idA, sink.completed[0])

	rest := m.ProcessAudio(30)
	require.Len(t, rest, 30)
	for _, f := range rest {
		assert.Equal(t, float32(1.0), f.L)
	}
}

func TestDrainSingleTransitionsWithoutCrossfadeOnExhaustion(t *testing.T) {
	rings := newFakeRings()
	idA := uuid.New()
	idB := uuid.New()
	rings.add(idA, 5)
	rings.add(idB, 5)

	sink := &recordingSink{}
	m := New(rings, 44100, WithCompletionSink(sink))
	m.StartPassage(idA, model.FadeCurveLinear, 0)
	m.mu.Lock()
	m.next = idB
	m.hasNext = true
	m.mu.Unlock()

	out := m.ProcessAudio(10)
	require.Len(t, out, 10)
	require.Len(t, sink.completed, 1)
	assert.Equal(t, idA, sink.completed[0])
}

func TestPauseDecaysThenResumeRampsBack(t *testing.T) {
	rings := newFakeRings()
	id := uuid.New()
	rings.add(id, 1000)

	m := New(rings, 44100)
	m.StartPassage(id, model.FadeCurveLinear, 0)
	m.Pause()

	out := m.ProcessAudio(200)
	require.Len(t, out, 200)
	assert.Less(t, out[199].L, out[0].L)

	m.Resume(model.FadeCurveLinear, 100)
	ramped := m.ProcessAudio(100)
	require.Len(t, ramped, 100)
	assert.Less(t, ramped[0].L, ramped[99].L)
}

func TestStopClearsState(t *testing.T) {
	rings := newFakeRings()
	id := uuid.New()
	rings.add(id, 100)

	m := New(rings, 44100)
	m.StartPassage(id, model.FadeCurveLinear, 0)
	m.Stop()
	assert.Equal(t, StateSingle, m.State())

	out := m.ProcessAudio(5)
	for _, f := range out {
		assert.Equal(t, float32(0), f.L)
	}
}

type recordingSink struct {
	completed []model.QueueEntryID
}

func (r *recordingSink) CrossfadeCompleted(old model.QueueEntryID) {
	r.completed = append(r.completed, old)
}
