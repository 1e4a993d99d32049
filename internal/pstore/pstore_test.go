package pstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{Path: filepath.Join(dir, "wkmp.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFile(t *testing.T) model.File {
	t.Helper()
	return model.File{
		ID:         uuid.New(),
		Path:       "/music/a.flac",
		Format:     "flac",
		SampleRate: 44100,
		Channels:   2,
		SizeBytes:  1024,
		ModTime:    time.Now().Truncate(time.Second),
		Status:     model.FileStatusPending,
	}
}

func TestCreateAndGetFileRoundTrips(t *testing.T) {
	s := newTestStore(t)
	f := testFile(t)

	require.NoError(t, s.CreateFile(context.Background(), f))

	got, ok, err := s.GetFile(context.Background(), f.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.Path, got.Path)
	assert.Equal(t, f.Format, got.Format)
	assert.Equal(t, f.Status, got.Status)
}

func TestGetFileMissingReturnsNotOK(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetFile(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindFileByHashExcludesSelf(t *testing.T) {
	s := newTestStore(t)
	f := testFile(t)
	f.Hash = "deadbeef"
	require.NoError(t, s.CreateFile(context.Background(), f))

	_, ok, err := s.FindFileByHash(context.Background(), "deadbeef", f.ID)
	require.NoError(t, err)
	assert.False(t, ok, "the file itself must not match as its own duplicate")

	other := testFile(t)
	other.Path = "/music/b.flac"
	require.NoError(t, s.CreateFile(context.Background(), other))
	require.NoError(t, s.UpdateFileHash(context.Background(), other.ID, "deadbeef"))

	id, ok, err := s.FindFileByHash(context.Background(), "deadbeef", f.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, other.ID, id)
}

func TestLinkDuplicatesUpdatesBothSides(t *testing.T) {
	s := newTestStore(t)
	a := testFile(t)
	b := testFile(t)
	b.Path = "/music/b.flac"
	require.NoError(t, s.CreateFile(context.Background(), a))
	require.NoError(t, s.CreateFile(context.Background(), b))

	require.NoError(t, s.LinkDuplicates(context.Background(), b.ID, a.ID))

	gotA, _, err := s.GetFile(context.Background(), a.ID)
	require.NoError(t, err)
	gotB, _, err := s.GetFile(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Contains(t, gotA.MatchingHashes, b.ID)
	assert.Contains(t, gotB.MatchingHashes, a.ID)
	assert.Equal(t, model.FileStatusDuplicateHash, gotB.Status)
}

func testPassage(fileID model.FileID) model.Passage {
	return model.Passage{
		ID:           uuid.New(),
		FileID:       fileID,
		FadeInCurve:  model.FadeCurveLinear,
		FadeOutCurve: model.FadeCurveLinear,
	}
}

func TestPersistEnqueueAssignsIncreasingPlayOrder(t *testing.T) {
	s := newTestStore(t)
	f := testFile(t)
	require.NoError(t, s.CreateFile(context.Background(), f))
	p1 := testPassage(f.ID)
	p2 := testPassage(f.ID)

	order1, err := s.PersistEnqueue(model.QueueEntry{ID: uuid.New(), PassageID: p1.ID}, p1)
	require.NoError(t, err)
	order2, err := s.PersistEnqueue(model.QueueEntry{ID: uuid.New(), PassageID: p2.ID}, p2)
	require.NoError(t, err)

	assert.Equal(t, int64(playOrderGap), order1)
	assert.Equal(t, order1+playOrderGap, order2)
}

func TestPersistDequeueRemovesEntry(t *testing.T) {
	s := newTestStore(t)
	f := testFile(t)
	require.NoError(t, s.CreateFile(context.Background(), f))
	p := testPassage(f.ID)
	id := uuid.New()

	_, err := s.PersistEnqueue(model.QueueEntry{ID: id, PassageID: p.ID}, p)
	require.NoError(t, err)

	require.NoError(t, s.PersistDequeue(id))

	entries, err := s.LoadQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistReorderRenumbersInGivenOrder(t *testing.T) {
	s := newTestStore(t)
	f := testFile(t)
	require.NoError(t, s.CreateFile(context.Background(), f))
	p1 := testPassage(f.ID)
	p2 := testPassage(f.ID)
	id1 := uuid.New()
	id2 := uuid.New()

	_, err := s.PersistEnqueue(model.QueueEntry{ID: id1, PassageID: p1.ID}, p1)
	require.NoError(t, err)
	_, err = s.PersistEnqueue(model.QueueEntry{ID: id2, PassageID: p2.ID}, p2)
	require.NoError(t, err)

	require.NoError(t, s.PersistReorder([]model.QueueEntry{
		{ID: id2, PassageID: p2.ID},
		{ID: id1, PassageID: p1.ID},
	}))

	entries, err := s.LoadQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id2, entries[0].ID)
	assert.Equal(t, id1, entries[1].ID)
}
