package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openMigrationDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&journal.Entry{}, &journal.Tag{}, &journal.EntryTag{}, &journal.EntryReference{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestApplyMigrationsNormalizesAndMergesTags(testContext *testing.T) {
	database := openMigrationDatabase(testContext)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{ID: "entry-1", UserID: "user-1", Title: "one", EntryType: journal.EntryTypeNote, CreatedAt: base, UpdatedAt: base},
		{ID: "entry-2", UserID: "user-1", Title: "two", EntryType: journal.EntryTypeNote, CreatedAt: base, UpdatedAt: base},
	}
	if err := database.Create(&entries).Error; err != nil {
		testContext.Fatalf("failed to insert entries: %v", err)
	}
	tags := []journal.Tag{
		{ID: "tag-upper", UserID: "user-1", Name: " Golang", Color: "#111111", CreatedAt: base},
		{ID: "tag-lower", UserID: "user-1", Name: "golang", Color: "#222222", CreatedAt: base.Add(time.Minute)},
		{ID: "tag-other-user", UserID: "user-2", Name: "Golang", Color: "#333333", CreatedAt: base},
	}
	if err := database.Create(&tags).Error; err != nil {
		testContext.Fatalf("failed to insert tags: %v", err)
	}
	links := []journal.EntryTag{
		{EntryID: "entry-1", TagID: "tag-upper", UserID: "user-1", CreatedAt: base},
		{EntryID: "entry-1", TagID: "tag-lower", UserID: "user-1", CreatedAt: base},
		{EntryID: "entry-2", TagID: "tag-lower", UserID: "user-1", CreatedAt: base},
	}
	if err := database.Create(&links).Error; err != nil {
		testContext.Fatalf("failed to insert links: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored []journal.Tag
	if err := database.Order("id ASC").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload tags: %v", err)
	}
	if len(stored) != 2 {
		testContext.Fatalf("expected duplicate tag to be merged, got %+v", stored)
	}
	for _, tag := range stored {
		if tag.Name != "golang" {
			testContext.Fatalf("expected normalized name, got %q", tag.Name)
		}
	}
	if stored[0].ID != "tag-other-user" || stored[1].ID != "tag-upper" {
		testContext.Fatalf("expected the oldest tag to survive, got %+v", stored)
	}

	var linkCount int64
	if err := database.Model(&journal.EntryTag{}).Where("tag_id = ?", "tag-upper").Count(&linkCount).Error; err != nil {
		testContext.Fatalf("failed to count links: %v", err)
	}
	if linkCount != 2 {
		testContext.Fatalf("expected both entries linked to the surviving tag, got %d", linkCount)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeTagNames).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsDropsDanglingReferences(testContext *testing.T) {
	database := openMigrationDatabase(testContext)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{ID: "a", UserID: "user-1", EntryType: journal.EntryTypeIdea, CreatedAt: base, UpdatedAt: base},
		{ID: "b", UserID: "user-1", EntryType: journal.EntryTypeIdea, CreatedAt: base, UpdatedAt: base},
	}
	if err := database.Create(&entries).Error; err != nil {
		testContext.Fatalf("failed to insert entries: %v", err)
	}
	references := []journal.EntryReference{
		{ID: "keep", UserID: "user-1", FromEntryID: "a", ToEntryID: "b", CreatedAt: base},
		{ID: "self", UserID: "user-1", FromEntryID: "a", ToEntryID: "a", CreatedAt: base},
		{ID: "broken", UserID: "user-1", FromEntryID: "b", ToEntryID: "missing", CreatedAt: base},
	}
	if err := database.Create(&references).Error; err != nil {
		testContext.Fatalf("failed to insert references: %v", err)
	}

	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var remaining []journal.EntryReference
	if err := database.Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to reload references: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "keep" {
		testContext.Fatalf("expected only the valid reference to remain, got %+v", remaining)
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database := openMigrationDatabase(testContext)
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("first run failed: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("second run failed: %v", err)
	}
	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 2 {
		testContext.Fatalf("expected two migration records, got %d", count)
	}
}

func TestOpenSQLiteMigratesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "anchor.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("open failed: %v", err)
	}
	for _, model := range Models() {
		if !database.Migrator().HasTable(model) {
			testContext.Fatalf("expected table for %T", model)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected empty path to be rejected")
	}
}
