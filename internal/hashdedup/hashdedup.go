// Package hashdedup computes a streaming SHA-256 content hash for an
// imported file and links it to any existing file sharing that hash.
package hashdedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

const chunkSize = 1 << 20 // 1 MiB, matches the streaming-read chunk size

// Store is the storage-layer surface hashdedup needs. internal/pstore
// implements it against sqlite.
type Store interface {
	// FindFileByHash returns the id of an existing file with hash, other
	// than excludeID. ok is false when no match exists.
	FindFileByHash(ctx context.Context, hash string, excludeID model.FileID) (id model.FileID, ok bool, err error)
	UpdateFileHash(ctx context.Context, fileID model.FileID, hash string) error
	// LinkDuplicates adds each file to the other's matching_hashes and
	// marks current as DUPLICATE_HASH, inside one transaction.
	LinkDuplicates(ctx context.Context, current, original model.FileID) error
}

// Result is the outcome of deduplicating one file.
type Result struct {
	Hash       string
	Duplicate  bool
	OriginalID model.FileID // valid only when Duplicate
}

// Deduplicator computes content hashes and links duplicates.
type Deduplicator struct {
	store         Store
	maxRetryWait  time.Duration
	recentLookups *cache.Cache
	logger        *slog.Logger
}

// New builds a deduplicator. maxRetryWait bounds the total time spent
// retrying LinkDuplicates under storage-layer lock contention (spec
// default 5s).
func New(store Store, maxRetryWait time.Duration) *Deduplicator {
	if maxRetryWait <= 0 {
		maxRetryWait = 5 * time.Second
	}
	return &Deduplicator{
		store:        store,
		maxRetryWait: maxRetryWait,
		// Short TTL: only meant to absorb bursts of the same hash arriving
		// within the same import batch (e.g. a playlist re-adding a file
		// already queued), not to serve as a long-lived duplicate index.
		recentLookups: cache.New(30*time.Second, time.Minute),
		logger:        logging.ForService("hashdedup"),
	}
}

// Hash streams path through SHA-256 in 1 MiB chunks and returns the
// lowercase hex digest.
func Hash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", perrors.FileError(err, path, 0)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", perrors.FileError(err, path, 0)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Process computes fileID's content hash, records it, and if another file
// already holds that hash, creates the bidirectional duplicate link and
// reports Duplicate.
func (d *Deduplicator) Process(ctx context.Context, fileID model.FileID, path string) (*Result, error) {
	hash, err := Hash(path)
	if err != nil {
		return nil, err
	}

	if err := d.store.UpdateFileHash(ctx, fileID, hash); err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryHash).Build()
	}

	if cached, ok := d.recentLookups.Get(hash); ok {
		originalID := cached.(model.FileID)
		if originalID != fileID {
			if err := d.link(ctx, fileID, originalID); err != nil {
				return nil, err
			}
			return &Result{Hash: hash, Duplicate: true, OriginalID: originalID}, nil
		}
	}

	originalID, found, err := d.store.FindFileByHash(ctx, hash, fileID)
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryHash).Build()
	}
	if !found {
		d.recentLookups.SetDefault(hash, fileID)
		return &Result{Hash: hash}, nil
	}

	if err := d.link(ctx, fileID, originalID); err != nil {
		return nil, err
	}
	return &Result{Hash: hash, Duplicate: true, OriginalID: originalID}, nil
}

func (d *Deduplicator) link(ctx context.Context, current, original model.FileID) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = d.maxRetryWait

	err := backoff.Retry(func() error {
		linkErr := d.store.LinkDuplicates(ctx, current, original)
		if linkErr != nil && isLockContention(linkErr) {
			if d.logger != nil {
				d.logger.Warn("retrying duplicate link under lock contention",
					"current", current, "original", original)
			}
			return linkErr
		}
		if linkErr != nil {
			return backoff.Permanent(linkErr)
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		return perrors.New(err).Category(perrors.CategoryHash).Build()
	}
	return nil
}

// isLockContention reports whether err looks like a transient
// storage-layer lock error worth retrying. internal/pstore wraps sqlite's
// "database is locked"/"database table is locked" into exactly this text.
func isLockContention(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
