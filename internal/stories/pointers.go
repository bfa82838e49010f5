package stories

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Active pointer maintenance. The (active_version_id, active_snapshot_id)
// pair on the story row is only ever written here, inside the transaction of
// whichever lifecycle operation made the change, so a reader can never
// observe a story pointing at a version or snapshot that the same
// transaction deleted or has not yet committed.

func (s *Service) setActivePointers(tx *gorm.DB, storyID StoryID, versionID VersionID, snapshotID SnapshotID) error {
	return tx.Model(&Story{}).
		Where("story_id = ?", storyID.String()).
		Updates(map[string]any{
			"active_version_id":  versionID.String(),
			"active_snapshot_id": snapshotID.String(),
		}).Error
}

func (s *Service) setActiveSnapshotPointer(tx *gorm.DB, storyID StoryID, snapshotID SnapshotID) error {
	return tx.Model(&Story{}).
		Where("story_id = ?", storyID.String()).
		Update("active_snapshot_id", snapshotID.String()).Error
}

// SwitchVersion makes versionID the story's active version and points the
// active snapshot at that version's most recent snapshot.
func (s *Service) SwitchVersion(ctx context.Context, storyID StoryID, versionID VersionID) (HydratedStory, error) {
	if s.db == nil {
		s.logError(opSwitchVersion, "missing_database", errMissingDatabase)
		return HydratedStory{}, newServiceError(opSwitchVersion, "missing_database", errMissingDatabase)
	}

	var hydrated HydratedStory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		story, err := s.storyForUpdate(tx, storyID)
		if err != nil {
			return newServiceError(opSwitchVersion, "story_select_failed", err)
		}

		version, err := s.versionByID(tx, versionID)
		if err != nil {
			return newServiceError(opSwitchVersion, "version_select_failed", err)
		}
		if version.StoryID != story.StoryID {
			return newServiceError(opSwitchVersion, "version_story_mismatch",
				fmt.Errorf("%w: version %s does not belong to story %s", ErrNotFound, versionID.String(), storyID.String()))
		}

		snapshot, err := s.latestSnapshot(tx, versionID)
		if err != nil {
			return newServiceError(opSwitchVersion, "snapshot_select_failed", err)
		}

		if err := s.setActivePointers(tx, storyID, versionID, SnapshotID(snapshot.SnapshotID)); err != nil {
			return newServiceError(opSwitchVersion, "pointer_update_failed", err)
		}

		hydrated = HydratedStory{Story: story, ActiveVersion: version, ActiveSnapshot: snapshot}
		hydrated.Story.ActiveVersionID = &version.VersionID
		hydrated.Story.ActiveSnapshotID = &snapshot.SnapshotID
		return nil
	})
	if txErr != nil {
		s.logError(opSwitchVersion, "transaction_failed", txErr,
			zap.String("story_id", storyID.String()),
			zap.String("version_id", versionID.String()))
		return HydratedStory{}, txErr
	}
	return hydrated, nil
}

// SwitchSnapshot restores a prior point by moving the active snapshot
// pointer. The snapshot must belong to the story's active version;
// cross-version restore goes through SwitchVersion first. No content is
// copied: subsequent autosaves overwrite the restored snapshot in place.
func (s *Service) SwitchSnapshot(ctx context.Context, storyID StoryID, snapshotID SnapshotID) (HydratedStory, error) {
	if s.db == nil {
		s.logError(opSwitchSnapshot, "missing_database", errMissingDatabase)
		return HydratedStory{}, newServiceError(opSwitchSnapshot, "missing_database", errMissingDatabase)
	}

	var hydrated HydratedStory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		story, err := s.storyForUpdate(tx, storyID)
		if err != nil {
			return newServiceError(opSwitchSnapshot, "story_select_failed", err)
		}
		if story.ActiveVersionID == nil {
			return newServiceError(opSwitchSnapshot, "missing_active_version",
				fmt.Errorf("%w: story %s has no active version", ErrNotFound, storyID.String()))
		}

		var snapshot Snapshot
		err = tx.Where("snapshot_id = ?", snapshotID.String()).Take(&snapshot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSwitchSnapshot, "snapshot_select_failed",
				fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID.String()))
		}
		if err != nil {
			return newServiceError(opSwitchSnapshot, "snapshot_select_failed", err)
		}
		if snapshot.VersionID != *story.ActiveVersionID {
			return newServiceError(opSwitchSnapshot, "snapshot_version_mismatch",
				fmt.Errorf("%w: snapshot %s does not belong to the active version of story %s", ErrNotFound, snapshotID.String(), storyID.String()))
		}

		if err := s.setActiveSnapshotPointer(tx, storyID, snapshotID); err != nil {
			return newServiceError(opSwitchSnapshot, "pointer_update_failed", err)
		}

		version, err := s.versionByID(tx, VersionID(snapshot.VersionID))
		if err != nil {
			return newServiceError(opSwitchSnapshot, "version_select_failed", err)
		}

		hydrated = HydratedStory{Story: story, ActiveVersion: version, ActiveSnapshot: snapshot}
		hydrated.Story.ActiveSnapshotID = &snapshot.SnapshotID
		return nil
	})
	if txErr != nil {
		s.logError(opSwitchSnapshot, "transaction_failed", txErr,
			zap.String("story_id", storyID.String()),
			zap.String("snapshot_id", snapshotID.String()))
		return HydratedStory{}, txErr
	}
	return hydrated, nil
}

// reassignActivePointers repoints a story whose active version was just
// deleted in the same transaction. The most recently updated remaining
// version wins, and its latest snapshot becomes active.
func (s *Service) reassignActivePointers(tx *gorm.DB, storyID StoryID, deletedVersionID VersionID) error {
	var replacement Version
	err := tx.Where("story_id = ? AND version_id <> ?", storyID.String(), deletedVersionID.String()).
		Order("updated_at_s DESC, version_id DESC").
		Take(&replacement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: story %s has no remaining versions", ErrNotFound, storyID.String())
	}
	if err != nil {
		return err
	}

	snapshot, err := s.latestSnapshot(tx, VersionID(replacement.VersionID))
	if err != nil {
		return err
	}

	return s.setActivePointers(tx, storyID, VersionID(replacement.VersionID), SnapshotID(snapshot.SnapshotID))
}
