package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsLastEdited(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&stories.Story{}, &stories.Version{}, &stories.Snapshot{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	legacy := stories.Story{
		StoryID:             "story-legacy",
		Title:               "Old Draft",
		CreatedAtSeconds:    1700000000,
		LastEditedAtSeconds: 0,
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert story: %v", err)
	}
	current := stories.Story{
		StoryID:             "story-current",
		Title:               "New Draft",
		CreatedAtSeconds:    1700000100,
		LastEditedAtSeconds: 1700000200,
	}
	if err := database.Create(&current).Error; err != nil {
		testContext.Fatalf("failed to insert story: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored stories.Story
	if err := database.Where("story_id = ?", legacy.StoryID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload story: %v", err)
	}
	if stored.LastEditedAtSeconds != legacy.CreatedAtSeconds {
		testContext.Fatalf("expected last edited to be backfilled to %d, got %d", legacy.CreatedAtSeconds, stored.LastEditedAtSeconds)
	}

	var storedCurrent stories.Story
	if err := database.Where("story_id = ?", current.StoryID).Take(&storedCurrent).Error; err != nil {
		testContext.Fatalf("failed to reload story: %v", err)
	}
	if storedCurrent.LastEditedAtSeconds != current.LastEditedAtSeconds {
		testContext.Fatalf("expected existing last edited to survive, got %d", storedCurrent.LastEditedAtSeconds)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillLastEdited).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	// Re-running is a no-op thanks to the ledger.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations failed: %v", err)
	}
}
