package pstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// playOrderGap mirrors queueassign's in-memory fallback spacing, per
// spec.md §4.12/§9: gaps of 10 leave room to insert without renumbering.
const playOrderGap = 10

// maxPersistRetryWait bounds the backoff applied to PersistEnqueue/
// PersistDequeue/PersistReorder under sqlite write-lock contention. The
// engine calls these synchronously from command-loop goroutines, never
// from the audio callback, so a bounded blocking retry here is safe.
const maxPersistRetryWait = 2 * time.Second

// PersistEnqueue implements internal/engine.Store: upserts the passage row
// (it may not exist yet for a freshly-enqueued file) and inserts the queue
// entry with a freshly-computed PlayOrder, returning the authoritative
// value read back from storage rather than trusting a caller-supplied one
// (spec.md §4.12's documented "stale zero play_order" regression class is
// this exact mistake).
func (s *Store) PersistEnqueue(entry model.QueueEntry, passage model.Passage) (int64, error) {
	var playOrder int64

	err := s.retry(context.Background(), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			passageRec := passageToRecord(passage)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"fade_in_point", "lead_in_point", "lead_out_point", "fade_out_point", "fade_in_curve", "fade_out_curve", "start", "end"}),
			}).Create(&passageRec).Error; err != nil {
				return err
			}

			var maxOrder int64
			if err := tx.Model(&queueEntryRecord{}).
				Select("COALESCE(MAX(play_order), 0)").
				Scan(&maxOrder).Error; err != nil {
				return err
			}
			playOrder = maxOrder + playOrderGap

			entryRec := queueEntryToRecord(entry)
			entryRec.PlayOrder = playOrder
			return tx.Create(&entryRec).Error
		})
	})
	if err != nil {
		return 0, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "persist_enqueue").Build()
	}
	return playOrder, nil
}

// PersistDequeue implements internal/engine.Store.
func (s *Store) PersistDequeue(id model.QueueEntryID) error {
	err := s.retry(context.Background(), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Delete(&queueEntryRecord{}, "id = ?", id).Error
	})
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "persist_dequeue").Build()
	}
	return nil
}

// PersistReorder implements internal/engine.Store: rewrites PlayOrder for
// every entry to match the slice's new ordering, gapped by playOrderGap,
// in one transaction.
func (s *Store) PersistReorder(entries []model.QueueEntry) error {
	err := s.retry(context.Background(), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i, e := range entries {
				order := int64(i+1) * playOrderGap
				if err := tx.Model(&queueEntryRecord{}).
					Where("id = ?", e.ID).
					Update("play_order", order).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "persist_reorder").Build()
	}
	return nil
}

// LoadQueue returns every queue entry, ordered by PlayOrder, for startup
// recovery (spec.md §4.12's queue-survives-restart requirement).
func (s *Store) LoadQueue(ctx context.Context) ([]model.QueueEntry, error) {
	var records []queueEntryRecord
	if err := s.db.WithContext(ctx).Order("play_order ASC").Find(&records).Error; err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "load_queue").Build()
	}
	out := make([]model.QueueEntry, len(records))
	for i, r := range records {
		out[i] = recordToQueueEntry(r)
	}
	return out, nil
}

// Rehydration is one persisted queue entry plus the passage and file path
// the engine needs to resubmit it to the decoder at startup. LoadQueue
// alone isn't enough for this (spec.md §4.12's queue-survives-restart
// requirement means more than just restoring PlayOrder): the decoder needs
// a path and full Passage, not just a QueueEntry naming a PassageID.
type Rehydration struct {
	Entry   model.QueueEntry
	Passage model.Passage
	Path    string
}

// LoadQueueForRehydration loads every persisted queue entry plus its
// passage and file path, ordered by PlayOrder. Three plain queries (rather
// than one join) keep this consistent with the rest of the package's
// Find/First style instead of hand-written join SQL.
func (s *Store) LoadQueueForRehydration(ctx context.Context) ([]Rehydration, error) {
	var entryRecords []queueEntryRecord
	if err := s.db.WithContext(ctx).Order("play_order ASC").Find(&entryRecords).Error; err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "load_queue_for_rehydration").Build()
	}

	out := make([]Rehydration, 0, len(entryRecords))
	for _, er := range entryRecords {
		var pr passageRecord
		if err := s.db.WithContext(ctx).First(&pr, "id = ?", er.PassageID).Error; err != nil {
			return nil, perrors.New(err).Category(perrors.CategoryStorage).
				Context("operation", "load_queue_for_rehydration").
				Context("passage_id", er.PassageID.String()).Build()
		}
		var fr fileRecord
		if err := s.db.WithContext(ctx).First(&fr, "id = ?", pr.FileID).Error; err != nil {
			return nil, perrors.New(err).Category(perrors.CategoryStorage).
				Context("operation", "load_queue_for_rehydration").
				Context("file_id", pr.FileID.String()).Build()
		}

		out = append(out, Rehydration{
			Entry:   recordToQueueEntry(er),
			Passage: recordToPassage(pr),
			Path:    fr.Path,
		})
	}
	return out, nil
}

// retry wraps fn in an exponential backoff loop, retrying only on sqlite
// lock-contention errors, mirroring internal/hashdedup's link() retry.
func (s *Store) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxPersistRetryWait

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && isLockContention(err) {
			s.logger.Warn("retrying storage write under lock contention")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}
