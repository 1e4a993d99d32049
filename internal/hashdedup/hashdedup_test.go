package hashdedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wkmp/wkmp-ap/internal/model"
)

type fakeStore struct {
	byHash map[string]model.FileID
	linked []struct{ current, original model.FileID }
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: make(map[string]model.FileID)}
}

func (s *fakeStore) FindFileByHash(_ context.Context, hash string, exclude model.FileID) (model.FileID, bool, error) {
	id, ok := s.byHash[hash]
	if ok && id == exclude {
		return model.FileID{}, false, nil
	}
	return id, ok, nil
}

func (s *fakeStore) UpdateFileHash(_ context.Context, fileID model.FileID, hash string) error {
	return nil
}

func (s *fakeStore) LinkDuplicates(_ context.Context, current, original model.FileID) error {
	s.linked = append(s.linked, struct{ current, original model.FileID }{current, original})
	return nil
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHashMatchesStandardSHA256(t *testing.T) {
	t.Parallel()
	path := writeTempFile(t, "test content")
	got, err := Hash(path)
	require.NoError(t, err)

	want := sha256.Sum256([]byte("test content"))
	require.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestProcessUniqueFile(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	dedup := New(store, time.Second)

	path := writeTempFile(t, "unique content")
	result, err := dedup.Process(context.Background(), uuid.New(), path)
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.Len(t, result.Hash, 64)
}

func TestProcessDuplicateFileLinksBidirectionally(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	originalID := uuid.New()

	path := writeTempFile(t, "shared content")
	hash, err := Hash(path)
	require.NoError(t, err)
	store.byHash[hash] = originalID

	dedup := New(store, time.Second)
	duplicateID := uuid.New()
	result, err := dedup.Process(context.Background(), duplicateID, path)
	require.NoError(t, err)
	require.True(t, result.Duplicate)
	require.Equal(t, originalID, result.OriginalID)
	require.Len(t, store.linked, 1)
	require.Equal(t, duplicateID, store.linked[0].current)
	require.Equal(t, originalID, store.linked[0].original)
}

func TestIsLockContentionMatchesSqliteMessages(t *testing.T) {
	t.Parallel()
	require.True(t, isLockContention(errString("database is locked")))
	require.True(t, isLockContention(errString("database table is locked: files")))
	require.False(t, isLockContention(errString("no such table: files")))
}

type errString string

func (e errString) Error() string { return string(e) }
