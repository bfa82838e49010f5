package stories

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultMaxSnapshots bounds the history kept per version unless the
// configuration overrides it.
const DefaultMaxSnapshots = 20

// enforceRetention deletes the oldest snapshots of a version until at most
// maxSnapshots remain. The snapshot a story is actively pointing at is never
// a deletion candidate: when the active snapshot is among the oldest, it is
// skipped and the next-oldest is evicted in its place.
func (s *Service) enforceRetention(tx *gorm.DB, versionID VersionID, maxSnapshots int, exemptSnapshotID string) (int64, error) {
	if maxSnapshots < 1 {
		maxSnapshots = 1
	}

	var total int64
	if err := tx.Model(&Snapshot{}).
		Where("version_id = ?", versionID.String()).
		Count(&total).Error; err != nil {
		return 0, err
	}
	excess := total - int64(maxSnapshots)
	if excess <= 0 {
		return 0, nil
	}

	var victims []Snapshot
	query := tx.Select("snapshot_id").
		Where("version_id = ?", versionID.String()).
		Order("created_at_s ASC, snapshot_id ASC").
		Limit(int(excess))
	if exemptSnapshotID != "" {
		query = query.Where("snapshot_id <> ?", exemptSnapshotID)
	}
	if err := query.Find(&victims).Error; err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	victimIDs := make([]string, 0, len(victims))
	for _, victim := range victims {
		victimIDs = append(victimIDs, victim.SnapshotID)
	}
	result := tx.Where("snapshot_id IN ?", victimIDs).Delete(&Snapshot{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CleanupSnapshots trims a version's history down to keepCount snapshots and
// reports how many rows were evicted. The owning story's active snapshot is
// exempt from eviction.
func (s *Service) CleanupSnapshots(ctx context.Context, versionID VersionID, keepCount int) (int64, error) {
	if s.db == nil {
		s.logError(opCleanupSnapshots, "missing_database", errMissingDatabase)
		return 0, newServiceError(opCleanupSnapshots, "missing_database", errMissingDatabase)
	}

	var deleted int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.versionByID(tx, versionID)
		if err != nil {
			return newServiceError(opCleanupSnapshots, "version_select_failed", err)
		}

		var story Story
		err = tx.Where("story_id = ?", version.StoryID).Take(&story).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCleanupSnapshots, "story_select_failed",
				fmt.Errorf("%w: story %s", ErrNotFound, version.StoryID))
		}
		if err != nil {
			return newServiceError(opCleanupSnapshots, "story_select_failed", err)
		}

		exempt := ""
		if story.ActiveSnapshotID != nil {
			exempt = *story.ActiveSnapshotID
		}
		deleted, err = s.enforceRetention(tx, versionID, keepCount, exempt)
		if err != nil {
			return newServiceError(opCleanupSnapshots, "retention_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCleanupSnapshots, "transaction_failed", txErr,
			zap.String("version_id", versionID.String()))
		return 0, txErr
	}
	return deleted, nil
}
