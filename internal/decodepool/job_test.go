package decodepool

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/model"
)

func TestJobHeapOrdersByPriority(t *testing.T) {
	t.Parallel()
	h := &jobHeap{}
	heap.Init(h)
	heap.Push(h, &Job{Priority: model.PriorityPrefetch, seq: 0})
	heap.Push(h, &Job{Priority: model.PriorityImmediate, seq: 1})
	heap.Push(h, &Job{Priority: model.PriorityNext, seq: 2})

	require.Equal(t, model.PriorityImmediate, heap.Pop(h).(*Job).Priority)
	require.Equal(t, model.PriorityNext, heap.Pop(h).(*Job).Priority)
	require.Equal(t, model.PriorityPrefetch, heap.Pop(h).(*Job).Priority)
}

func TestJobHeapBreaksTiesBySubmissionOrder(t *testing.T) {
	t.Parallel()
	h := &jobHeap{}
	heap.Init(h)
	heap.Push(h, &Job{Priority: model.PriorityNext, seq: 5})
	heap.Push(h, &Job{Priority: model.PriorityNext, seq: 2})
	heap.Push(h, &Job{Priority: model.PriorityNext, seq: 3})

	assert.Equal(t, int64(2), heap.Pop(h).(*Job).seq)
	assert.Equal(t, int64(3), heap.Pop(h).(*Job).seq)
	assert.Equal(t, int64(5), heap.Pop(h).(*Job).seq)
}
