package decodepool

import (
	"github.com/wkmp/wkmp-ap/internal/model"
)

// Job is one decode request: a queue entry's passage at a given priority.
// ResumeOffsetSamples is the frame cursor into the (lazily decoded) faded
// stereo buffer to continue from after a priority preemption.
type Job struct {
	QueueEntryID model.QueueEntryID
	Passage      model.Passage
	Path         string
	Priority     model.DecodePriority
	FullDecode   bool

	ResumeOffsetSamples int64

	// Populated on first decode and reused across resumes so preemption
	// never re-decodes from the file.
	decoded            []float32 // stereo interleaved, at the working rate, post-fade
	decodedTotalFrames int64

	seq int64 // submission order, breaks priority ties FIFO
}

// jobHeap is a min-heap on (Priority, seq): lower Priority value is more
// urgent; among equal priorities, the job submitted first runs first.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}
