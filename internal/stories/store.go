package stories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Storage helpers for the three content tables. Every mutating helper takes
// the transaction handle of the lifecycle operation that invoked it, so a
// multi-table change is never split across transactions.

func (s *Service) insertVersion(tx *gorm.DB, storyID StoryID, name VersionName, nowSeconds int64) (Version, error) {
	var collisionCount int64
	err := tx.Model(&Version{}).
		Where("story_id = ? AND name = ?", storyID.String(), name.String()).
		Count(&collisionCount).Error
	if err != nil {
		return Version{}, err
	}
	if collisionCount > 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrDuplicateName, name.String())
	}

	versionID, err := s.idProvider.NewID()
	if err != nil {
		return Version{}, err
	}

	version := Version{
		VersionID:        versionID,
		StoryID:          storyID.String(),
		Name:             name.String(),
		CreatedAtSeconds: nowSeconds,
		UpdatedAtSeconds: nowSeconds,
	}
	if err := tx.Create(&version).Error; err != nil {
		return Version{}, err
	}
	return version, nil
}

func (s *Service) insertSnapshot(tx *gorm.DB, versionID VersionID, content string, nowSeconds int64) (Snapshot, error) {
	var version Version
	err := tx.Where("version_id = ?", versionID.String()).Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, fmt.Errorf("%w: version %s", ErrNotFound, versionID.String())
	}
	if err != nil {
		return Snapshot{}, err
	}

	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		SnapshotID:       snapshotID,
		VersionID:        versionID.String(),
		Content:          content,
		CreatedAtSeconds: nowSeconds,
		UpdatedAtSeconds: nowSeconds,
	}
	if err := tx.Create(&snapshot).Error; err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// overwriteSnapshotContent is the crash-protection autosave write path: it
// replaces the content of an existing snapshot row and never inserts.
func (s *Service) overwriteSnapshotContent(tx *gorm.DB, snapshotID SnapshotID, content string, nowSeconds int64) (Snapshot, error) {
	var snapshot Snapshot
	err := tx.Where("snapshot_id = ?", snapshotID.String()).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID.String())
	}
	if err != nil {
		return Snapshot{}, err
	}

	snapshot.Content = content
	snapshot.UpdatedAtSeconds = nowSeconds
	if err := tx.Model(&Snapshot{}).
		Where("snapshot_id = ?", snapshotID.String()).
		Updates(map[string]any{"content": content, "updated_at_s": nowSeconds}).Error; err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// latestSnapshot returns the most recent snapshot of a version. Snapshot
// identifiers are UUIDv7, so the identifier breaks creation-second ties in
// insertion order.
func (s *Service) latestSnapshot(tx *gorm.DB, versionID VersionID) (Snapshot, error) {
	var snapshot Snapshot
	err := tx.Where("version_id = ?", versionID.String()).
		Order("created_at_s DESC, snapshot_id DESC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, fmt.Errorf("%w: version %s has no snapshots", ErrNotFound, versionID.String())
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Service) storyForUpdate(tx *gorm.DB, storyID StoryID) (Story, error) {
	var story Story
	err := tx.Where("story_id = ?", storyID.String()).Take(&story).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Story{}, fmt.Errorf("%w: story %s", ErrNotFound, storyID.String())
	}
	if err != nil {
		return Story{}, err
	}
	return story, nil
}

func (s *Service) versionByID(tx *gorm.DB, versionID VersionID) (Version, error) {
	var version Version
	err := tx.Where("version_id = ?", versionID.String()).Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Version{}, fmt.Errorf("%w: version %s", ErrNotFound, versionID.String())
	}
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

// deleteVersionRows removes a version together with all of its snapshots.
// The caller is responsible for the last-version guard and for pointer
// reassignment; this helper only cascades the row deletion.
func (s *Service) deleteVersionRows(tx *gorm.DB, versionID VersionID) error {
	if err := tx.Where("version_id = ?", versionID.String()).Delete(&Snapshot{}).Error; err != nil {
		return err
	}
	return tx.Where("version_id = ?", versionID.String()).Delete(&Version{}).Error
}

func (s *Service) deleteStoryRows(tx *gorm.DB, storyID StoryID) error {
	subQuery := tx.Model(&Version{}).Select("version_id").Where("story_id = ?", storyID.String())
	if err := tx.Where("version_id IN (?)", subQuery).Delete(&Snapshot{}).Error; err != nil {
		return err
	}
	if err := tx.Where("story_id = ?", storyID.String()).Delete(&Version{}).Error; err != nil {
		return err
	}
	return tx.Where("story_id = ?", storyID.String()).Delete(&Story{}).Error
}
