package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wkmp/wkmp-ap/internal/amplitude"
	"github.com/wkmp/wkmp-ap/internal/boundary"
	"github.com/wkmp/wkmp-ap/internal/hashdedup"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/pcmfrontend"
	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

// importFile runs path through the same analysis a full import system
// would: content-hash dedup (internal/hashdedup), silence-based passage-span
// detection (internal/boundary), and lead-in/lead-out amplitude analysis
// (internal/amplitude) within the detected span. Global crossfade defaults
// fill in the fade points a per-passage override would otherwise supply
// (spec.md §6). The result is persisted via store.PersistEnqueue, the same
// method internal/engine.EnqueueFile calls, so "play" and "enqueue" share
// one write path into the queue.
func importFile(ctx context.Context, store *pstore.Store, settings *playerconf.Settings, path string) (model.QueueEntryID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("stat: %w", err)
	}

	decoded, err := pcmfrontend.DecodeMono(path)
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("decode: %w", err)
	}

	fileID := uuid.New()
	file := model.File{
		ID:         fileID,
		Path:       path,
		Format:     strings.TrimPrefix(strings.ToUpper(filepath.Ext(path)), "."),
		SampleRate: decoded.SampleRate,
		Channels:   decoded.Channels,
		SizeBytes:  info.Size(),
		ModTime:    info.ModTime(),
		Status:     model.FileStatusPending,
	}
	if err := store.CreateFile(ctx, file); err != nil {
		return model.QueueEntryID{}, fmt.Errorf("create file: %w", err)
	}

	dedup := hashdedup.New(store, 0)
	if _, err := dedup.Process(ctx, fileID, path); err != nil {
		return model.QueueEntryID{}, fmt.Errorf("hash dedup: %w", err)
	}

	boundaries, err := boundary.NewDetector().Detect(path)
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("boundary detect: %w", err)
	}
	if len(boundaries) == 0 {
		return model.QueueEntryID{}, fmt.Errorf("no passage boundaries detected in %s", path)
	}
	span := boundaries[0]

	startSeconds := float64(tick.TicksToSamples(span.Start, int64(decoded.SampleRate))) / float64(decoded.SampleRate)
	endSeconds := float64(tick.TicksToSamples(span.End, int64(decoded.SampleRate))) / float64(decoded.SampleRate)

	amp, err := amplitude.DefaultAnalyzer().AnalyzeFile(ctx, path, startSeconds, endSeconds, 0)
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("amplitude analyze: %w", err)
	}

	globalFade, err := tick.MSToTicks(settings.GlobalCrossfadeTimeMS)
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("global crossfade default: %w", err)
	}
	leadIn, err := tick.MSToTicks(amp.LeadInDuration.Milliseconds())
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("lead-in duration: %w", err)
	}
	leadOut, err := tick.MSToTicks(amp.LeadOutDuration.Milliseconds())
	if err != nil {
		return model.QueueEntryID{}, fmt.Errorf("lead-out duration: %w", err)
	}

	end := span.End
	curve := model.FadeCurve(settings.GlobalFadeCurve)
	passage := model.Passage{
		ID:           uuid.New(),
		FileID:       fileID,
		Start:        span.Start,
		End:          &end,
		FadeInPoint:  span.Start + globalFade,
		LeadInPoint:  span.Start + leadIn,
		LeadOutPoint: span.End - leadOut,
		FadeOutPoint: span.End - globalFade,
		FadeInCurve:  curve,
		FadeOutCurve: curve,
	}
	if err := passage.Validate(); err != nil {
		return model.QueueEntryID{}, fmt.Errorf("passage timing: %w", err)
	}

	entry := model.QueueEntry{ID: uuid.New(), PassageID: passage.ID}
	if _, err := store.PersistEnqueue(entry, passage); err != nil {
		return model.QueueEntryID{}, fmt.Errorf("persist: %w", err)
	}
	return entry.ID, nil
}
