package database

import (
	"errors"
	"time"

	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillLastEdited = "2026-05-12_backfill_story_last_edited"

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
		{name: migrationBackfillLastEdited, apply: backfillStoryLastEdited},
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
		if err := migration.apply(db); err != nil {
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

// Stories created before last_edited_at_s existed carry a zero value; treat
// creation time as the last edit.
func backfillStoryLastEdited(db *gorm.DB) error {
	return db.Model(&stories.Story{}).
		Where("last_edited_at_s = 0").
		Update("last_edited_at_s", gorm.Expr("created_at_s")).Error
}
