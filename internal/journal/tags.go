package journal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListTags returns all tags of the user ordered by name.
func (s *Service) ListTags(ctx context.Context, userID UserID) ([]Tag, error) {
	if err := s.guard(opListTags, userID); err != nil {
		return nil, err
	}
	var tags []Tag
	if err := s.db.WithContext(ctx).
		Where(queryUserID, userID.String()).
		Order("name ASC").
		Find(&tags).Error; err != nil {
		return nil, s.fail(opListTags, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	return tags, nil
}

// CreateTag stores a tag under its normalized name. An existing tag with the
// same name is returned unchanged. An empty color picks the next palette color.
func (s *Service) CreateTag(ctx context.Context, userID UserID, name, color string) (Tag, error) {
	if err := s.guard(opCreateTag, userID); err != nil {
		return Tag{}, err
	}
	normalized := NormalizeTagName(name)
	if normalized == "" {
		return Tag{}, s.fail(opCreateTag, reasonInvalidInput, fmt.Errorf("%w: empty", ErrInvalidTagName))
	}

	var created Tag
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Tag
		err := tx.Where(queryUserID+" AND name = ?", userID.String(), normalized).Take(&existing).Error
		if err == nil {
			created = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opCreateTag, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		}

		if color == "" {
			var count int64
			if err := tx.Model(&Tag{}).Where(queryUserID, userID.String()).Count(&count).Error; err != nil {
				return s.fail(opCreateTag, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
			}
			color = TagColorFor(int(count))
		}

		tagID, err := s.newID(opCreateTag)
		if err != nil {
			return err
		}
		created = Tag{
			ID:        tagID,
			UserID:    userID.String(),
			Name:      normalized,
			Color:     color,
			CreatedAt: s.now(),
		}
		if err := tx.Create(&created).Error; err != nil {
			return s.fail(opCreateTag, reasonInsertFailed, err, zap.String(fieldUserID, userID.String()))
		}
		return nil
	})
	if txErr != nil {
		return Tag{}, txErr
	}
	return created, nil
}

// UpdateTag renames or recolors a tag.
func (s *Service) UpdateTag(ctx context.Context, userID UserID, tagID string, patch TagPatch) (Tag, error) {
	if err := s.guard(opUpdateTag, userID); err != nil {
		return Tag{}, err
	}
	if patch.Name != nil && NormalizeTagName(*patch.Name) == "" {
		return Tag{}, s.fail(opUpdateTag, reasonInvalidInput, fmt.Errorf("%w: empty", ErrInvalidTagName))
	}

	var updated Tag
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.loadTag(tx, opUpdateTag, userID, tagID)
		if err != nil {
			return err
		}
		updated = patch.ApplyTo(existing)
		if err := tx.Save(&updated).Error; err != nil {
			return s.fail(opUpdateTag, reasonUpdateFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldTagID, tagID))
		}
		return nil
	})
	if txErr != nil {
		return Tag{}, txErr
	}
	return updated, nil
}

// DeleteTag removes a tag and every entry link to it.
func (s *Service) DeleteTag(ctx context.Context, userID UserID, tagID string) error {
	if err := s.guard(opDeleteTag, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadTag(tx, opDeleteTag, userID, tagID); err != nil {
			return err
		}
		fields := []zap.Field{zap.String(fieldUserID, userID.String()), zap.String(fieldTagID, tagID)}
		if err := tx.Where(queryUserID+" AND tag_id = ?", userID.String(), tagID).Delete(&EntryTag{}).Error; err != nil {
			return s.fail(opDeleteTag, reasonDeleteFailed, err, fields...)
		}
		if err := tx.Where(queryUserRecord, userID.String(), tagID).Delete(&Tag{}).Error; err != nil {
			return s.fail(opDeleteTag, reasonDeleteFailed, err, fields...)
		}
		return nil
	})
}

// TagsForEntries builds the tag index for the given entries, preserving link order.
func (s *Service) TagsForEntries(ctx context.Context, userID UserID, entryIDs []string) (TagIndex, error) {
	if err := s.guard(opTagsForEntries, userID); err != nil {
		return nil, err
	}
	index := TagIndex{}
	if len(entryIDs) == 0 {
		return index, nil
	}

	db := s.db.WithContext(ctx)
	var links []EntryTag
	if err := db.Where(queryUserID+" AND entry_id IN ?", userID.String(), entryIDs).
		Order("created_at ASC").
		Find(&links).Error; err != nil {
		return nil, s.fail(opTagsForEntries, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	if len(links) == 0 {
		return index, nil
	}

	tagIDs := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if _, ok := seen[link.TagID]; ok {
			continue
		}
		seen[link.TagID] = struct{}{}
		tagIDs = append(tagIDs, link.TagID)
	}

	var tags []Tag
	if err := db.Where(queryUserID+" AND id IN ?", userID.String(), tagIDs).Find(&tags).Error; err != nil {
		return nil, s.fail(opTagsForEntries, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	byID := make(map[string]Tag, len(tags))
	for _, tag := range tags {
		byID[tag.ID] = tag
	}

	for _, link := range links {
		tag, ok := byID[link.TagID]
		if !ok {
			continue
		}
		index[link.EntryID] = append(index[link.EntryID], tag)
	}
	return index, nil
}

// LinkTag assigns a tag to an entry. Linking twice is a no-op.
func (s *Service) LinkTag(ctx context.Context, userID UserID, entryID EntryID, tagID string) error {
	if err := s.guard(opLinkTag, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadEntry(tx, opLinkTag, userID, entryID); err != nil {
			return err
		}
		if _, err := s.loadTag(tx, opLinkTag, userID, tagID); err != nil {
			return err
		}
		link := EntryTag{
			EntryID:   entryID.String(),
			TagID:     tagID,
			UserID:    userID.String(),
			CreatedAt: s.now(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return s.fail(opLinkTag, reasonInsertFailed, err,
				zap.String(fieldEntryID, entryID.String()),
				zap.String(fieldTagID, tagID))
		}
		return nil
	})
}

// UnlinkTag removes a tag from an entry.
func (s *Service) UnlinkTag(ctx context.Context, userID UserID, entryID EntryID, tagID string) error {
	if err := s.guard(opUnlinkTag, userID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where(queryUserLink, userID.String(), entryID.String(), tagID).
		Delete(&EntryTag{}).Error; err != nil {
		return s.fail(opUnlinkTag, reasonDeleteFailed, err,
			zap.String(fieldEntryID, entryID.String()),
			zap.String(fieldTagID, tagID))
	}
	return nil
}

type tagUsageRow struct {
	TagID string `gorm:"column:tag_id"`
	Usage int    `gorm:"column:usage_count"`
}

// TopTags returns the most used tags, most used first.
func (s *Service) TopTags(ctx context.Context, userID UserID, limit int) ([]TagUsage, error) {
	if err := s.guard(opTopTags, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	db := s.db.WithContext(ctx)
	var rows []tagUsageRow
	if err := db.Model(&EntryTag{}).
		Select("tag_id, COUNT(*) AS usage_count").
		Where(queryUserID, userID.String()).
		Group("tag_id").
		Order("usage_count DESC").
		Order("tag_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, s.fail(opTopTags, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	if len(rows) == 0 {
		return []TagUsage{}, nil
	}

	tagIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		tagIDs = append(tagIDs, row.TagID)
	}
	var tags []Tag
	if err := db.Where(queryUserID+" AND id IN ?", userID.String(), tagIDs).Find(&tags).Error; err != nil {
		return nil, s.fail(opTopTags, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	byID := make(map[string]Tag, len(tags))
	for _, tag := range tags {
		byID[tag.ID] = tag
	}

	usages := make([]TagUsage, 0, len(rows))
	for _, row := range rows {
		tag, ok := byID[row.TagID]
		if !ok {
			continue
		}
		usages = append(usages, TagUsage{Tag: tag, Count: row.Usage})
	}
	return usages, nil
}

func (s *Service) loadTag(db *gorm.DB, operation string, userID UserID, tagID string) (Tag, error) {
	var tag Tag
	err := db.Where(queryUserRecord, userID.String(), tagID).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tag{}, newServiceError(operation, reasonNotFound, fmt.Errorf("%w: tag %s", ErrNotFound, tagID))
	}
	if err != nil {
		return Tag{}, s.fail(operation, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldTagID, tagID))
	}
	return tag, nil
}
