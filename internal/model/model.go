// Package model defines the domain types shared across the playback
// pipeline: files, passages, queue entries, and decoder-buffer chains.
// Timing fields are ticks (see internal/tick) rather than milliseconds or
// samples, so they survive storage and cross sample-rate conversions
// losslessly.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/wkmp/wkmp-ap/internal/tick"
)

// FileID identifies an imported file.
type FileID = uuid.UUID

// PassageID identifies a passage within a file.
type PassageID = uuid.UUID

// QueueEntryID identifies a live entry in the playback queue.
type QueueEntryID = uuid.UUID

// FileStatus is the lifecycle state of an imported file.
type FileStatus string

const (
	FileStatusPending       FileStatus = "PENDING"
	FileStatusReady         FileStatus = "READY"
	FileStatusDuplicateHash FileStatus = "DUPLICATE_HASH"
	FileStatusFailed        FileStatus = "FAILED"
)

// File is a content-addressed audio file.
type File struct {
	ID              FileID
	Path            string
	Hash            string // 64-char SHA-256 hex digest
	DurationTicks   *tick.Tick
	Format          string
	SampleRate      int
	Channels        int
	SizeBytes       int64
	ModTime         time.Time
	Status          FileStatus
	MatchingHashes  []FileID // sibling files sharing the same content hash
}

// FadeCurve names the shape of a fade-in or fade-out ramp.
type FadeCurve string

const (
	FadeCurveLinear      FadeCurve = "linear"
	FadeCurveExponential FadeCurve = "exponential"
	FadeCurveLogarithmic FadeCurve = "logarithmic"
	FadeCurveCosine      FadeCurve = "cosine"
	FadeCurveEqualPower  FadeCurve = "equal_power"
)

// Passage is a logical, sample-accurate segment of a file. All fields are
// ticks relative to the start of the file. End may be nil: the decoder
// discovers the true endpoint during decode and reports it back via
// DiscoveredEndpoint.
//
// Invariant: Start <= FadeInPoint <= LeadInPoint <= LeadOutPoint <=
// FadeOutPoint <= End (when End is known).
type Passage struct {
	ID       PassageID
	FileID   FileID
	Start    tick.Tick
	End      *tick.Tick
	FadeInPoint  tick.Tick
	LeadInPoint  tick.Tick
	LeadOutPoint tick.Tick
	FadeOutPoint tick.Tick
	FadeInCurve  FadeCurve
	FadeOutCurve FadeCurve
}

// Validate checks the passage timing ordering invariant:
// Start <= FadeInPoint <= LeadInPoint <= LeadOutPoint <= FadeOutPoint <= End.
// End is skipped when nil (undefined endpoints are resolved at decode time).
func (p Passage) Validate() error {
	points := []struct {
		name string
		val  tick.Tick
	}{
		{"start", p.Start},
		{"fade_in_point", p.FadeInPoint},
		{"lead_in_point", p.LeadInPoint},
		{"lead_out_point", p.LeadOutPoint},
		{"fade_out_point", p.FadeOutPoint},
	}
	for i := 1; i < len(points); i++ {
		if points[i].val < points[i-1].val {
			return &TimingOrderError{
				Passage: p.ID,
				Before:  points[i-1].name,
				After:   points[i].name,
			}
		}
	}
	if p.End != nil && *p.End < p.FadeOutPoint {
		return &TimingOrderError{Passage: p.ID, Before: "fade_out_point", After: "end"}
	}
	return nil
}

// TimingOrderError reports a passage whose timing points are not
// monotonically non-decreasing.
type TimingOrderError struct {
	Passage PassageID
	Before  string
	After   string
}

func (e *TimingOrderError) Error() string {
	return "passage " + e.Passage.String() + ": " + e.Before + " must not exceed " + e.After
}

// DiscoveredEndpoint is the true end-of-stream tick the decoder found while
// decoding a passage whose End was nil at enqueue time.
type DiscoveredEndpoint struct {
	PassageID PassageID
	EndTicks  tick.Tick
}

// DecodePriority orders decode requests; lower numeric value is more urgent.
type DecodePriority int

const (
	PriorityImmediate DecodePriority = iota
	PriorityNext
	PriorityPrefetch
)

// QueueEntry is an ordered reference to a passage with a monotonic
// PlayOrder (gaps of 10, to allow insertion without renumbering).
type QueueEntry struct {
	ID        QueueEntryID
	PassageID PassageID
	PlayOrder int64

	// Per-entry overrides; zero value means "use the passage's own timing".
	FadeInOverride  *tick.Tick
	FadeOutOverride *tick.Tick

	EnqueuedAt time.Time
}

// ChainIndex identifies one of the maximum_decode_streams decoder-buffer
// pairs available to the engine.
type ChainIndex int

// Chain is the (decoder slot, ring buffer) pair assigned to a queue entry.
type Chain struct {
	Index        ChainIndex
	QueueEntryID QueueEntryID
}
