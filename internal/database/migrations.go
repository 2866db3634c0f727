package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeTagNames     = "2024-06-01_normalize_tag_names"
	migrationDropDanglingReference = "2024-06-15_drop_dangling_references"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeTagNames, apply: normalizeTagNames},
		{name: migrationDropDanglingReference, apply: dropDanglingReferences},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeTagNames lower-cases and trims tag names. Tags that collapse onto
// the same name are merged into the oldest one and their links moved over.
func normalizeTagNames(tx *gorm.DB) error {
	var tags []journal.Tag
	if err := tx.Order("created_at ASC").Order("id ASC").Find(&tags).Error; err != nil {
		return err
	}

	type groupKey struct{ userID, name string }
	keepers := map[groupKey]journal.Tag{}
	var renames []journal.Tag
	for _, tag := range tags {
		key := groupKey{userID: tag.UserID, name: journal.NormalizeTagName(tag.Name)}
		keeper, seen := keepers[key]
		if !seen {
			keepers[key] = tag
			if tag.Name != key.name {
				renames = append(renames, tag)
			}
			continue
		}
		if err := mergeTag(tx, tag.ID, keeper.ID); err != nil {
			return err
		}
	}

	for _, tag := range renames {
		err := tx.Model(&journal.Tag{}).
			Where("id = ?", tag.ID).
			Update("name", journal.NormalizeTagName(tag.Name)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeTag(tx *gorm.DB, duplicateID, keeperID string) error {
	err := tx.Exec(
		"DELETE FROM entry_tags WHERE tag_id = ? AND entry_id IN (SELECT entry_id FROM entry_tags WHERE tag_id = ?)",
		duplicateID, keeperID,
	).Error
	if err != nil {
		return err
	}
	if err := tx.Model(&journal.EntryTag{}).Where("tag_id = ?", duplicateID).Update("tag_id", keeperID).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", duplicateID).Delete(&journal.Tag{}).Error
}

// dropDanglingReferences removes self references and references whose
// endpoints no longer exist.
func dropDanglingReferences(tx *gorm.DB) error {
	return tx.Exec(
		`DELETE FROM entry_references
		 WHERE from_entry_id = to_entry_id
		    OR from_entry_id NOT IN (SELECT id FROM entries)
		    OR to_entry_id NOT IN (SELECT id FROM entries)`,
	).Error
}
