package decodepool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/buffermanager"
	"github.com/wkmp/wkmp-ap/internal/model"
)

func TestSubmitDropsDuplicateForSameQueueEntry(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New()
	p := New(buffers)
	defer p.Shutdown()

	id := uuid.New()
	passage := model.Passage{ID: uuid.New()}

	require.NoError(t, p.Submit(id, "missing.wav", passage, model.PriorityNext, true))
	require.NoError(t, p.Submit(id, "missing.wav", passage, model.PriorityImmediate, true))

	// The second submission must not have grown the heap: RegisterDecoding
	// is idempotent and the active-set check short-circuits the duplicate.
	_, managed := buffers.Ring(id)
	assert.True(t, managed)
}

func TestSubmitAfterShutdownIsRejected(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New()
	p := New(buffers)
	p.Shutdown()

	err := p.Submit(uuid.New(), "missing.wav", model.Passage{}, model.PriorityNext, true)
	assert.Error(t, err)
}

func TestFailedDecodeReleasesBuffer(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New()
	p := New(buffers)

	id := uuid.New()
	require.NoError(t, p.Submit(id, "does-not-exist.wav", model.Passage{}, model.PriorityImmediate, true))
	p.Shutdown() // waits for the worker to finish processing the submitted job

	_, managed := buffers.Ring(id)
	assert.False(t, managed, "a failed decode must release its buffer registration")
}

func TestPickResumableLockedPrefersHigherPriority(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New(buffermanager.WithCapacityFrames(100), buffermanager.WithThresholds(0, 0))
	p := New(buffers)
	p.Shutdown() // stop the worker so the test can poke at pool internals single-threaded

	low := uuid.New()
	high := uuid.New()
	buffers.RegisterDecoding(low)
	buffers.RegisterDecoding(high)

	p.mu.Lock()
	p.paused[low] = &Job{QueueEntryID: low, Priority: model.PriorityPrefetch}
	p.paused[high] = &Job{QueueEntryID: high, Priority: model.PriorityImmediate}
	picked := p.pickResumableLocked()
	p.mu.Unlock()

	require.NotNil(t, picked)
	assert.Equal(t, high, picked.QueueEntryID)
}

func TestPickResumableLockedSkipsJobsStillOverThreshold(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New(buffermanager.WithCapacityFrames(100), buffermanager.WithThresholds(50, 50))
	p := New(buffers)
	p.Shutdown()

	id := uuid.New()
	buffers.RegisterDecoding(id)
	buffers.PushSamples(id, make([]float32, 2*90)) // far below resume threshold

	p.mu.Lock()
	p.paused[id] = &Job{QueueEntryID: id, Priority: model.PriorityImmediate}
	picked := p.pickResumableLocked()
	p.mu.Unlock()

	assert.Nil(t, picked)
}

func TestShouldYieldComparesAgainstHeapHead(t *testing.T) {
	t.Parallel()
	buffers := buffermanager.New()
	p := New(buffers)
	p.Shutdown()

	p.mu.Lock()
	p.heap = jobHeap{{Priority: model.PriorityImmediate}}
	p.mu.Unlock()

	assert.True(t, p.shouldYield(model.PriorityPrefetch))
	assert.False(t, p.shouldYield(model.PriorityImmediate))
}
