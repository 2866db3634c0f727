package journal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListQuery selects a page of entries.
type ListQuery struct {
	Offset   int
	Limit    int
	Archived bool
}

// CreateEntry persists a new entry and returns it with its server-assigned id.
func (s *Service) CreateEntry(ctx context.Context, userID UserID, draft EntryDraft) (Entry, error) {
	if err := s.guard(opCreateEntry, userID); err != nil {
		return Entry{}, err
	}
	if err := draft.Validate(); err != nil {
		return Entry{}, s.fail(opCreateEntry, reasonInvalidInput, err, zap.String(fieldUserID, userID.String()))
	}

	entryID, err := s.newID(opCreateEntry)
	if err != nil {
		return Entry{}, err
	}

	now := s.now()
	entry := Entry{
		ID:         entryID,
		UserID:     userID.String(),
		Title:      draft.Title,
		Content:    draft.Content,
		EntryType:  draft.EntryType,
		Status:     draft.Status,
		CustomDate: draft.CustomDate,
		ImageURL:   draft.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, s.fail(opCreateEntry, reasonInsertFailed, err, zap.String(fieldUserID, userID.String()))
	}
	return entry, nil
}

// ListEntries returns a page of entries ordered by creation time, newest first.
func (s *Service) ListEntries(ctx context.Context, userID UserID, query ListQuery) ([]Entry, error) {
	if err := s.guard(opListEntries, userID); err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where(queryUserID+" AND archived = ?", userID.String(), query.Archived).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, s.fail(opListEntries, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	return entries, nil
}

// GetEntry loads a single entry.
func (s *Service) GetEntry(ctx context.Context, userID UserID, entryID EntryID) (Entry, error) {
	if err := s.guard(opGetEntry, userID); err != nil {
		return Entry{}, err
	}
	return s.loadEntry(s.db.WithContext(ctx), opGetEntry, userID, entryID)
}

// UpdateEntry applies a partial update and returns the stored entry.
func (s *Service) UpdateEntry(ctx context.Context, userID UserID, entryID EntryID, patch EntryPatch) (Entry, error) {
	if err := s.guard(opUpdateEntry, userID); err != nil {
		return Entry{}, err
	}
	if err := patch.Validate(); err != nil {
		return Entry{}, s.fail(opUpdateEntry, reasonInvalidInput, err, zap.String(fieldEntryID, entryID.String()))
	}

	var updated Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.loadEntry(tx, opUpdateEntry, userID, entryID)
		if err != nil {
			return err
		}
		updated = patch.ApplyTo(existing)
		updated.UpdatedAt = s.now()
		if err := tx.Save(&updated).Error; err != nil {
			return s.fail(opUpdateEntry, reasonUpdateFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryID, entryID.String()))
		}
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	return updated, nil
}

// ArchiveEntry hides an entry from every view.
func (s *Service) ArchiveEntry(ctx context.Context, userID UserID, entryID EntryID) (Entry, error) {
	archived := true
	return s.UpdateEntry(ctx, userID, entryID, EntryPatch{Archived: &archived})
}

// UnarchiveEntry restores an archived entry.
func (s *Service) UnarchiveEntry(ctx context.Context, userID UserID, entryID EntryID) (Entry, error) {
	archived := false
	return s.UpdateEntry(ctx, userID, entryID, EntryPatch{Archived: &archived})
}

// DeleteEntry removes an entry together with its tag links and references.
func (s *Service) DeleteEntry(ctx context.Context, userID UserID, entryID EntryID) error {
	if err := s.guard(opDeleteEntry, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadEntry(tx, opDeleteEntry, userID, entryID); err != nil {
			return err
		}
		fields := []zap.Field{zap.String(fieldUserID, userID.String()), zap.String(fieldEntryID, entryID.String())}
		if err := tx.Where(queryUserEntry, userID.String(), entryID.String()).Delete(&EntryTag{}).Error; err != nil {
			return s.fail(opDeleteEntry, reasonDeleteFailed, err, fields...)
		}
		if err := tx.Where(queryUserTouches, userID.String(), entryID.String(), entryID.String()).Delete(&EntryReference{}).Error; err != nil {
			return s.fail(opDeleteEntry, reasonDeleteFailed, err, fields...)
		}
		if err := tx.Where(queryUserRecord, userID.String(), entryID.String()).Delete(&Entry{}).Error; err != nil {
			return s.fail(opDeleteEntry, reasonDeleteFailed, err, fields...)
		}
		return nil
	})
}

func (s *Service) loadEntry(db *gorm.DB, operation string, userID UserID, entryID EntryID) (Entry, error) {
	var entry Entry
	err := db.Where(queryUserRecord, userID.String(), entryID.String()).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, newServiceError(operation, reasonNotFound, fmt.Errorf("%w: entry %s", ErrNotFound, entryID))
	}
	if err != nil {
		return Entry{}, s.fail(operation, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID.String()))
	}
	return entry, nil
}
