package pstore

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

// uuidList is a comma-joined TEXT column of UUIDs, used only for
// File.MatchingHashes: a handful of sibling IDs per row never justifies a
// join table the way queue entries or passages do.
type uuidList []uuid.UUID

// GormDataType tells GORM's schema builder what column type to migrate
// this custom type to; without it AutoMigrate has no byte/string/numeric
// kind to fall back on for a slice-of-struct field.
func (uuidList) GormDataType() string { return "text" }

func (l uuidList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "", nil
	}
	parts := make([]string, len(l))
	for i, id := range l {
		parts[i] = id.String()
	}
	return strings.Join(parts, ","), nil
}

func (l *uuidList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("pstore: cannot scan %T into uuidList", src)
	}
	if s == "" {
		*l = nil
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(uuidList, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return fmt.Errorf("pstore: invalid uuid %q in uuidList: %w", p, err)
		}
		out = append(out, id)
	}
	*l = out
	return nil
}

// fileRecord is the GORM model for model.File.
type fileRecord struct {
	ID             model.FileID `gorm:"primaryKey"`
	Path           string       `gorm:"uniqueIndex;not null"`
	Hash           string       `gorm:"index"`
	DurationTicks  *int64
	Format         string
	SampleRate     int
	Channels       int
	SizeBytes      int64
	ModTime        time.Time
	Status         string `gorm:"index"`
	MatchingHashes uuidList
}

func (fileRecord) TableName() string { return "files" }

func fileToRecord(f model.File) fileRecord {
	r := fileRecord{
		ID:             f.ID,
		Path:           f.Path,
		Hash:           f.Hash,
		Format:         f.Format,
		SampleRate:     f.SampleRate,
		Channels:       f.Channels,
		SizeBytes:      f.SizeBytes,
		ModTime:        f.ModTime,
		Status:         string(f.Status),
		MatchingHashes: uuidList(f.MatchingHashes),
	}
	if f.DurationTicks != nil {
		v := int64(*f.DurationTicks)
		r.DurationTicks = &v
	}
	return r
}

func recordToFile(r fileRecord) model.File {
	f := model.File{
		ID:             r.ID,
		Path:           r.Path,
		Hash:           r.Hash,
		Format:         r.Format,
		SampleRate:     r.SampleRate,
		Channels:       r.Channels,
		SizeBytes:      r.SizeBytes,
		ModTime:        r.ModTime,
		Status:         model.FileStatus(r.Status),
		MatchingHashes: []model.FileID(r.MatchingHashes),
	}
	if r.DurationTicks != nil {
		t := tick.Tick(*r.DurationTicks)
		f.DurationTicks = &t
	}
	return f
}

// passageRecord is the GORM model for model.Passage.
type passageRecord struct {
	ID           model.PassageID `gorm:"primaryKey"`
	FileID       model.FileID    `gorm:"index;not null"`
	Start        int64
	End          *int64
	FadeInPoint  int64
	LeadInPoint  int64
	LeadOutPoint int64
	FadeOutPoint int64
	FadeInCurve  string
	FadeOutCurve string
}

func (passageRecord) TableName() string { return "passages" }

func passageToRecord(p model.Passage) passageRecord {
	r := passageRecord{
		ID:           p.ID,
		FileID:       p.FileID,
		Start:        int64(p.Start),
		FadeInPoint:  int64(p.FadeInPoint),
		LeadInPoint:  int64(p.LeadInPoint),
		LeadOutPoint: int64(p.LeadOutPoint),
		FadeOutPoint: int64(p.FadeOutPoint),
		FadeInCurve:  string(p.FadeInCurve),
		FadeOutCurve: string(p.FadeOutCurve),
	}
	if p.End != nil {
		v := int64(*p.End)
		r.End = &v
	}
	return r
}

func recordToPassage(r passageRecord) model.Passage {
	p := model.Passage{
		ID:           r.ID,
		FileID:       r.FileID,
		Start:        tick.Tick(r.Start),
		FadeInPoint:  tick.Tick(r.FadeInPoint),
		LeadInPoint:  tick.Tick(r.LeadInPoint),
		LeadOutPoint: tick.Tick(r.LeadOutPoint),
		FadeOutPoint: tick.Tick(r.FadeOutPoint),
		FadeInCurve:  model.FadeCurve(r.FadeInCurve),
		FadeOutCurve: model.FadeCurve(r.FadeOutCurve),
	}
	if r.End != nil {
		t := tick.Tick(*r.End)
		p.End = &t
	}
	return p
}

// queueEntryRecord is the GORM model for model.QueueEntry.
type queueEntryRecord struct {
	ID              model.QueueEntryID `gorm:"primaryKey"`
	PassageID       model.PassageID    `gorm:"index;not null"`
	PlayOrder       int64              `gorm:"index"`
	FadeInOverride  *int64
	FadeOutOverride *int64
	EnqueuedAt      time.Time
}

func (queueEntryRecord) TableName() string { return "queue_entries" }

func queueEntryToRecord(e model.QueueEntry) queueEntryRecord {
	r := queueEntryRecord{
		ID:         e.ID,
		PassageID:  e.PassageID,
		PlayOrder:  e.PlayOrder,
		EnqueuedAt: e.EnqueuedAt,
	}
	if e.FadeInOverride != nil {
		v := int64(*e.FadeInOverride)
		r.FadeInOverride = &v
	}
	if e.FadeOutOverride != nil {
		v := int64(*e.FadeOutOverride)
		r.FadeOutOverride = &v
	}
	return r
}

func recordToQueueEntry(r queueEntryRecord) model.QueueEntry {
	e := model.QueueEntry{
		ID:         r.ID,
		PassageID:  r.PassageID,
		PlayOrder:  r.PlayOrder,
		EnqueuedAt: r.EnqueuedAt,
	}
	if r.FadeInOverride != nil {
		t := tick.Tick(*r.FadeInOverride)
		e.FadeInOverride = &t
	}
	if r.FadeOutOverride != nil {
		t := tick.Tick(*r.FadeOutOverride)
		e.FadeOutOverride = &t
	}
	return e
}
