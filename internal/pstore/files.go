package pstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// CreateFile inserts a new file record in PENDING status.
func (s *Store) CreateFile(ctx context.Context, f model.File) error {
	r := fileToRecord(f)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "create_file").Context("file_id", f.ID.String()).Build()
	}
	return nil
}

// GetFile returns the file with id.
func (s *Store) GetFile(ctx context.Context, id model.FileID) (model.File, bool, error) {
	var r fileRecord
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.File{}, false, nil
	}
	if err != nil {
		return model.File{}, false, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "get_file").Build()
	}
	return recordToFile(r), true, nil
}

// FindFileByHash implements internal/hashdedup.Store.
func (s *Store) FindFileByHash(ctx context.Context, hash string, excludeID model.FileID) (model.FileID, bool, error) {
	var r fileRecord
	err := s.db.WithContext(ctx).
		Where("hash = ? AND id <> ?", hash, excludeID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FileID{}, false, nil
	}
	if err != nil {
		return model.FileID{}, false, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "find_file_by_hash").Build()
	}
	return r.ID, true, nil
}

// UpdateFileHash implements internal/hashdedup.Store.
func (s *Store) UpdateFileHash(ctx context.Context, fileID model.FileID, hash string) error {
	err := s.db.WithContext(ctx).Model(&fileRecord{}).
		Where("id = ?", fileID).
		Update("hash", hash).Error
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "update_file_hash").Build()
	}
	return nil
}

// LinkDuplicates implements internal/hashdedup.Store: appends each file to
// the other's MatchingHashes and marks current DUPLICATE_HASH, inside one
// transaction (grounded on queue.rs's complete_passage_removal using the
// same transactional-sibling-update shape, applied here to file rows
// rather than queue entries).
func (s *Store) LinkDuplicates(ctx context.Context, current, original model.FileID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var currentRec, originalRec fileRecord
		if err := tx.First(&currentRec, "id = ?", current).Error; err != nil {
			return err
		}
		if err := tx.First(&originalRec, "id = ?", original).Error; err != nil {
			return err
		}

		currentRec.MatchingHashes = appendUnique(currentRec.MatchingHashes, original)
		currentRec.Status = string(model.FileStatusDuplicateHash)
		originalRec.MatchingHashes = appendUnique(originalRec.MatchingHashes, current)

		if err := tx.Save(&currentRec).Error; err != nil {
			return err
		}
		return tx.Save(&originalRec).Error
	})
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "link_duplicates").Build()
	}
	return nil
}

func appendUnique(list uuidList, id model.FileID) uuidList {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
