package stories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNotFound indicates a referenced story, version, or snapshot does not exist.
	ErrNotFound = errors.New("stories: not found")
	// ErrDuplicateName indicates a version name collision within the same story.
	ErrDuplicateName = errors.New("stories: duplicate version name")
	// ErrLastVersion indicates an attempt to delete a story's only version.
	ErrLastVersion = errors.New("stories: cannot delete the only version")
	// ErrLastSnapshot indicates an attempt to delete a version's only snapshot.
	ErrLastSnapshot = errors.New("stories: cannot delete the only snapshot")
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "stories.service.new"
	opCreateStory      = "stories.create_story"
	opGetStory         = "stories.get_story"
	opListStories      = "stories.list_stories"
	opRenameStory      = "stories.rename_story"
	opDeleteStory      = "stories.delete_story"
	opCreateVersion    = "stories.create_version"
	opListVersions     = "stories.list_versions"
	opRenameVersion    = "stories.rename_version"
	opDeleteVersion    = "stories.delete_version"
	opSwitchVersion    = "stories.switch_version"
	opCreateSnapshot   = "stories.create_snapshot"
	opDeleteSnapshot   = "stories.delete_snapshot"
	opListSnapshots    = "stories.list_snapshots"
	opUpdateContent    = "stories.update_snapshot_content"
	opSwitchSnapshot   = "stories.switch_snapshot"
	opCleanupSnapshots = "stories.cleanup_snapshots"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new stories, versions, and snapshots.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the content service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   IDProvider
	Logger       *zap.Logger
	MaxSnapshots int
}

// Service owns the stories, versions, and snapshots tables and every
// invariant that spans them. All pointer mutation goes through it.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   IDProvider
	logger       *zap.Logger
	maxSnapshots int
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	maxSnapshots := cfg.MaxSnapshots
	if maxSnapshots < 1 {
		maxSnapshots = DefaultMaxSnapshots
	}

	return &Service{
		db:           cfg.Database,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
		maxSnapshots: maxSnapshots,
	}, nil
}

// CreateStory creates the story row, its "Original" version with an empty
// initial snapshot, and sets both active pointers, all in one transaction.
func (s *Service) CreateStory(ctx context.Context, collectionID, title string) (HydratedStory, error) {
	if s.db == nil {
		s.logError(opCreateStory, "missing_database", errMissingDatabase)
		return HydratedStory{}, newServiceError(opCreateStory, "missing_database", errMissingDatabase)
	}

	var hydrated HydratedStory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nowSeconds := s.clock().UTC().Unix()

		storyIdentifier, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opCreateStory, "id_generation_failed", err)
		}

		story := Story{
			StoryID:             storyIdentifier,
			CollectionID:        collectionID,
			Title:               title,
			WordCount:           0,
			CreatedAtSeconds:    nowSeconds,
			LastEditedAtSeconds: nowSeconds,
		}
		if err := tx.Create(&story).Error; err != nil {
			return newServiceError(opCreateStory, "story_insert_failed", err)
		}

		storyID := StoryID(storyIdentifier)
		version, err := s.insertVersion(tx, storyID, OriginalVersionName, nowSeconds)
		if err != nil {
			return newServiceError(opCreateStory, "version_insert_failed", err)
		}

		snapshot, err := s.insertSnapshot(tx, VersionID(version.VersionID), "", nowSeconds)
		if err != nil {
			return newServiceError(opCreateStory, "snapshot_insert_failed", err)
		}

		if err := s.setActivePointers(tx, storyID, VersionID(version.VersionID), SnapshotID(snapshot.SnapshotID)); err != nil {
			return newServiceError(opCreateStory, "pointer_update_failed", err)
		}

		story.ActiveVersionID = &version.VersionID
		story.ActiveSnapshotID = &snapshot.SnapshotID
		hydrated = HydratedStory{Story: story, ActiveVersion: version, ActiveSnapshot: snapshot}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateStory, "transaction_failed", txErr, zap.String("title", title))
		return HydratedStory{}, txErr
	}
	return hydrated, nil
}

// GetStory loads a story together with its active version and snapshot.
func (s *Service) GetStory(ctx context.Context, storyID StoryID) (HydratedStory, error) {
	if s.db == nil {
		s.logError(opGetStory, "missing_database", errMissingDatabase)
		return HydratedStory{}, newServiceError(opGetStory, "missing_database", errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	story, err := s.storyForUpdate(db, storyID)
	if err != nil {
		s.logError(opGetStory, "story_select_failed", err, zap.String("story_id", storyID.String()))
		return HydratedStory{}, newServiceError(opGetStory, "story_select_failed", err)
	}
	if story.ActiveVersionID == nil || story.ActiveSnapshotID == nil {
		err := fmt.Errorf("%w: story %s has no active pointers", ErrNotFound, storyID.String())
		s.logError(opGetStory, "missing_active_pointers", err)
		return HydratedStory{}, newServiceError(opGetStory, "missing_active_pointers", err)
	}

	version, err := s.versionByID(db, VersionID(*story.ActiveVersionID))
	if err != nil {
		s.logError(opGetStory, "version_select_failed", err, zap.String("story_id", storyID.String()))
		return HydratedStory{}, newServiceError(opGetStory, "version_select_failed", err)
	}

	var snapshot Snapshot
	err = db.Where("snapshot_id = ?", *story.ActiveSnapshotID).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = fmt.Errorf("%w: snapshot %s", ErrNotFound, *story.ActiveSnapshotID)
	}
	if err != nil {
		s.logError(opGetStory, "snapshot_select_failed", err, zap.String("story_id", storyID.String()))
		return HydratedStory{}, newServiceError(opGetStory, "snapshot_select_failed", err)
	}

	return HydratedStory{Story: story, ActiveVersion: version, ActiveSnapshot: snapshot}, nil
}

// ListStories returns all stories ordered by most recent edit.
func (s *Service) ListStories(ctx context.Context) ([]Story, error) {
	if s.db == nil {
		s.logError(opListStories, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListStories, "missing_database", errMissingDatabase)
	}

	var storyRows []Story
	if err := s.db.WithContext(ctx).
		Order("last_edited_at_s DESC, story_id DESC").
		Find(&storyRows).Error; err != nil {
		s.logError(opListStories, "query_failed", err)
		return nil, newServiceError(opListStories, "query_failed", err)
	}
	return storyRows, nil
}

// RenameStory updates a story's title.
func (s *Service) RenameStory(ctx context.Context, storyID StoryID, title string) error {
	if s.db == nil {
		s.logError(opRenameStory, "missing_database", errMissingDatabase)
		return newServiceError(opRenameStory, "missing_database", errMissingDatabase)
	}

	result := s.db.WithContext(ctx).Model(&Story{}).
		Where("story_id = ?", storyID.String()).
		Update("title", title)
	if result.Error != nil {
		s.logError(opRenameStory, "update_failed", result.Error, zap.String("story_id", storyID.String()))
		return newServiceError(opRenameStory, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("%w: story %s", ErrNotFound, storyID.String())
		s.logError(opRenameStory, "story_missing", err)
		return newServiceError(opRenameStory, "story_missing", err)
	}
	return nil
}

// DeleteStory removes a story and cascades to its versions and snapshots.
func (s *Service) DeleteStory(ctx context.Context, storyID StoryID) error {
	if s.db == nil {
		s.logError(opDeleteStory, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteStory, "missing_database", errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.storyForUpdate(tx, storyID); err != nil {
			return newServiceError(opDeleteStory, "story_select_failed", err)
		}
		if err := s.deleteStoryRows(tx, storyID); err != nil {
			return newServiceError(opDeleteStory, "delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteStory, "transaction_failed", txErr, zap.String("story_id", storyID.String()))
		return txErr
	}
	return nil
}

// CreateVersionParams describes a version fork. Content seeds the new
// version's initial snapshot. PendingContent, when set, is the editor's
// unsaved buffer and is flushed into the old active snapshot before the
// fork; when nil, Content is flushed.
type CreateVersionParams struct {
	Name           VersionName
	Content        string
	PendingContent *string
}

// CreateVersion creates a new named version and switches the story to it.
// The editor's pending content is flushed into the old active snapshot
// first, inside the same transaction, so the old version keeps every edit
// made before the fork.
func (s *Service) CreateVersion(ctx context.Context, storyID StoryID, params CreateVersionParams) (HydratedStory, error) {
	if s.db == nil {
		s.logError(opCreateVersion, "missing_database", errMissingDatabase)
		return HydratedStory{}, newServiceError(opCreateVersion, "missing_database", errMissingDatabase)
	}

	var hydrated HydratedStory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nowSeconds := s.clock().UTC().Unix()

		story, err := s.storyForUpdate(tx, storyID)
		if err != nil {
			return newServiceError(opCreateVersion, "story_select_failed", err)
		}
		if story.ActiveSnapshotID == nil {
			return newServiceError(opCreateVersion, "missing_active_pointers",
				fmt.Errorf("%w: story %s has no active snapshot", ErrNotFound, storyID.String()))
		}

		// Flush before fork. Inserting the new version first would strand
		// the user's pending edits outside the old version's history.
		flushContent := params.Content
		if params.PendingContent != nil {
			flushContent = *params.PendingContent
		}
		if _, err := s.overwriteSnapshotContent(tx, SnapshotID(*story.ActiveSnapshotID), flushContent, nowSeconds); err != nil {
			return newServiceError(opCreateVersion, "flush_failed", err)
		}

		version, err := s.insertVersion(tx, storyID, params.Name, nowSeconds)
		if err != nil {
			if errors.Is(err, ErrDuplicateName) {
				return newServiceError(opCreateVersion, "duplicate_name", err)
			}
			return newServiceError(opCreateVersion, "version_insert_failed", err)
		}

		snapshot, err := s.insertSnapshot(tx, VersionID(version.VersionID), params.Content, nowSeconds)
		if err != nil {
			return newServiceError(opCreateVersion, "snapshot_insert_failed", err)
		}

		if err := s.setActivePointers(tx, storyID, VersionID(version.VersionID), SnapshotID(snapshot.SnapshotID)); err != nil {
			return newServiceError(opCreateVersion, "pointer_update_failed", err)
		}

		story.ActiveVersionID = &version.VersionID
		story.ActiveSnapshotID = &snapshot.SnapshotID
		hydrated = HydratedStory{Story: story, ActiveVersion: version, ActiveSnapshot: snapshot}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateVersion, "transaction_failed", txErr,
			zap.String("story_id", storyID.String()),
			zap.String("name", params.Name.String()))
		return HydratedStory{}, txErr
	}
	return hydrated, nil
}

// ListVersions returns a story's versions, newest first.
func (s *Service) ListVersions(ctx context.Context, storyID StoryID) ([]Version, error) {
	if s.db == nil {
		s.logError(opListVersions, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListVersions, "missing_database", errMissingDatabase)
	}

	var versionRows []Version
	if err := s.db.WithContext(ctx).
		Where("story_id = ?", storyID.String()).
		Order("created_at_s DESC, version_id DESC").
		Find(&versionRows).Error; err != nil {
		s.logError(opListVersions, "query_failed", err, zap.String("story_id", storyID.String()))
		return nil, newServiceError(opListVersions, "query_failed", err)
	}
	return versionRows, nil
}

// RenameVersion changes a version's user-visible name.
func (s *Service) RenameVersion(ctx context.Context, versionID VersionID, newName VersionName) error {
	if s.db == nil {
		s.logError(opRenameVersion, "missing_database", errMissingDatabase)
		return newServiceError(opRenameVersion, "missing_database", errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.versionByID(tx, versionID)
		if err != nil {
			return newServiceError(opRenameVersion, "version_select_failed", err)
		}
		if version.Name == newName.String() {
			return nil
		}

		var collisionCount int64
		err = tx.Model(&Version{}).
			Where("story_id = ? AND name = ? AND version_id <> ?", version.StoryID, newName.String(), versionID.String()).
			Count(&collisionCount).Error
		if err != nil {
			return newServiceError(opRenameVersion, "collision_check_failed", err)
		}
		if collisionCount > 0 {
			return newServiceError(opRenameVersion, "duplicate_name",
				fmt.Errorf("%w: %q", ErrDuplicateName, newName.String()))
		}

		nowSeconds := s.clock().UTC().Unix()
		err = tx.Model(&Version{}).
			Where("version_id = ?", versionID.String()).
			Updates(map[string]any{"name": newName.String(), "updated_at_s": nowSeconds}).Error
		if err != nil {
			return newServiceError(opRenameVersion, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opRenameVersion, "transaction_failed", txErr,
			zap.String("version_id", versionID.String()))
		return txErr
	}
	return nil
}

// DeleteVersion removes a version and its snapshots. Deleting a story's only
// version is refused with ErrLastVersion. When the deleted version was
// active, the story is repointed at the most recently updated survivor
// within the same transaction.
func (s *Service) DeleteVersion(ctx context.Context, versionID VersionID) error {
	if s.db == nil {
		s.logError(opDeleteVersion, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteVersion, "missing_database", errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.versionByID(tx, versionID)
		if err != nil {
			return newServiceError(opDeleteVersion, "version_select_failed", err)
		}

		var siblingCount int64
		if err := tx.Model(&Version{}).
			Where("story_id = ?", version.StoryID).
			Count(&siblingCount).Error; err != nil {
			return newServiceError(opDeleteVersion, "sibling_count_failed", err)
		}
		if siblingCount <= 1 {
			return newServiceError(opDeleteVersion, "last_version",
				fmt.Errorf("%w: version %s", ErrLastVersion, versionID.String()))
		}

		story, err := s.storyForUpdate(tx, StoryID(version.StoryID))
		if err != nil {
			return newServiceError(opDeleteVersion, "story_select_failed", err)
		}
		wasActive := story.ActiveVersionID != nil && *story.ActiveVersionID == versionID.String()

		if err := s.deleteVersionRows(tx, versionID); err != nil {
			return newServiceError(opDeleteVersion, "delete_failed", err)
		}

		if wasActive {
			if err := s.reassignActivePointers(tx, StoryID(version.StoryID), versionID); err != nil {
				return newServiceError(opDeleteVersion, "pointer_reassignment_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteVersion, "transaction_failed", txErr,
			zap.String("version_id", versionID.String()))
		return txErr
	}
	return nil
}

// CreateSnapshot records a history point: a fresh snapshot of the provided
// content in the story's active version, which immediately becomes the
// active snapshot. The previously active snapshot is left untouched as a
// restorable state. Retention runs in the same transaction.
func (s *Service) CreateSnapshot(ctx context.Context, storyID StoryID, content string) (Snapshot, error) {
	if s.db == nil {
		s.logError(opCreateSnapshot, "missing_database", errMissingDatabase)
		return Snapshot{}, newServiceError(opCreateSnapshot, "missing_database", errMissingDatabase)
	}

	var created Snapshot
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nowSeconds := s.clock().UTC().Unix()

		story, err := s.storyForUpdate(tx, storyID)
		if err != nil {
			return newServiceError(opCreateSnapshot, "story_select_failed", err)
		}
		if story.ActiveVersionID == nil {
			return newServiceError(opCreateSnapshot, "missing_active_version",
				fmt.Errorf("%w: story %s has no active version", ErrNotFound, storyID.String()))
		}

		snapshot, err := s.insertSnapshot(tx, VersionID(*story.ActiveVersionID), content, nowSeconds)
		if err != nil {
			return newServiceError(opCreateSnapshot, "snapshot_insert_failed", err)
		}

		if err := s.setActiveSnapshotPointer(tx, storyID, SnapshotID(snapshot.SnapshotID)); err != nil {
			return newServiceError(opCreateSnapshot, "pointer_update_failed", err)
		}

		if _, err := s.enforceRetention(tx, VersionID(*story.ActiveVersionID), s.maxSnapshots, snapshot.SnapshotID); err != nil {
			return newServiceError(opCreateSnapshot, "retention_failed", err)
		}

		created = snapshot
		return nil
	})
	if txErr != nil {
		s.logError(opCreateSnapshot, "transaction_failed", txErr,
			zap.String("story_id", storyID.String()))
		return Snapshot{}, txErr
	}
	return created, nil
}

// DeleteSnapshot removes a single snapshot from a version's history.
// Deleting a version's only snapshot is refused with ErrLastSnapshot. When
// the deleted snapshot is the story's active one, the active pointer moves
// to the version's most recent surviving snapshot in the same transaction.
func (s *Service) DeleteSnapshot(ctx context.Context, snapshotID SnapshotID) error {
	if s.db == nil {
		s.logError(opDeleteSnapshot, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteSnapshot, "missing_database", errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot Snapshot
		err := tx.Where("snapshot_id = ?", snapshotID.String()).Take(&snapshot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteSnapshot, "snapshot_select_failed",
				fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID.String()))
		}
		if err != nil {
			return newServiceError(opDeleteSnapshot, "snapshot_select_failed", err)
		}

		var siblingCount int64
		if err := tx.Model(&Snapshot{}).
			Where("version_id = ?", snapshot.VersionID).
			Count(&siblingCount).Error; err != nil {
			return newServiceError(opDeleteSnapshot, "sibling_count_failed", err)
		}
		if siblingCount <= 1 {
			return newServiceError(opDeleteSnapshot, "last_snapshot",
				fmt.Errorf("%w: snapshot %s", ErrLastSnapshot, snapshotID.String()))
		}

		version, err := s.versionByID(tx, VersionID(snapshot.VersionID))
		if err != nil {
			return newServiceError(opDeleteSnapshot, "version_select_failed", err)
		}
		story, err := s.storyForUpdate(tx, StoryID(version.StoryID))
		if err != nil {
			return newServiceError(opDeleteSnapshot, "story_select_failed", err)
		}
		wasActive := story.ActiveSnapshotID != nil && *story.ActiveSnapshotID == snapshotID.String()

		if err := tx.Where("snapshot_id = ?", snapshotID.String()).Delete(&Snapshot{}).Error; err != nil {
			return newServiceError(opDeleteSnapshot, "delete_failed", err)
		}

		if wasActive {
			replacement, err := s.latestSnapshot(tx, VersionID(snapshot.VersionID))
			if err != nil {
				return newServiceError(opDeleteSnapshot, "pointer_reassignment_failed", err)
			}
			if err := s.setActiveSnapshotPointer(tx, StoryID(version.StoryID), SnapshotID(replacement.SnapshotID)); err != nil {
				return newServiceError(opDeleteSnapshot, "pointer_update_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteSnapshot, "transaction_failed", txErr,
			zap.String("snapshot_id", snapshotID.String()))
		return txErr
	}
	return nil
}

// ListSnapshots returns a version's snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context, versionID VersionID) ([]Snapshot, error) {
	if s.db == nil {
		s.logError(opListSnapshots, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListSnapshots, "missing_database", errMissingDatabase)
	}

	var snapshotRows []Snapshot
	if err := s.db.WithContext(ctx).
		Where("version_id = ?", versionID.String()).
		Order("created_at_s DESC, snapshot_id DESC").
		Find(&snapshotRows).Error; err != nil {
		s.logError(opListSnapshots, "query_failed", err, zap.String("version_id", versionID.String()))
		return nil, newServiceError(opListSnapshots, "query_failed", err)
	}
	return snapshotRows, nil
}

// UpdateActiveSnapshotContent is the crash-protection autosave write: it
// overwrites the story's active snapshot in place and refreshes the story's
// word count and last-edited time. No new snapshot row is created.
// A negative wordCount asks the service to count words itself.
func (s *Service) UpdateActiveSnapshotContent(ctx context.Context, storyID StoryID, content string, wordCount int64) (Snapshot, error) {
	if s.db == nil {
		s.logError(opUpdateContent, "missing_database", errMissingDatabase)
		return Snapshot{}, newServiceError(opUpdateContent, "missing_database", errMissingDatabase)
	}

	if wordCount < 0 {
		wordCount = int64(len(strings.Fields(content)))
	}

	var updated Snapshot
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nowSeconds := s.clock().UTC().Unix()

		story, err := s.storyForUpdate(tx, storyID)
		if err != nil {
			return newServiceError(opUpdateContent, "story_select_failed", err)
		}
		if story.ActiveSnapshotID == nil {
			return newServiceError(opUpdateContent, "missing_active_snapshot",
				fmt.Errorf("%w: story %s has no active snapshot", ErrNotFound, storyID.String()))
		}

		snapshot, err := s.overwriteSnapshotContent(tx, SnapshotID(*story.ActiveSnapshotID), content, nowSeconds)
		if err != nil {
			return newServiceError(opUpdateContent, "snapshot_update_failed", err)
		}

		err = tx.Model(&Story{}).
			Where("story_id = ?", storyID.String()).
			Updates(map[string]any{"word_count": wordCount, "last_edited_at_s": nowSeconds}).Error
		if err != nil {
			return newServiceError(opUpdateContent, "story_update_failed", err)
		}

		updated = snapshot
		return nil
	})
	if txErr != nil {
		s.logError(opUpdateContent, "transaction_failed", txErr,
			zap.String("story_id", storyID.String()))
		return Snapshot{}, txErr
	}
	return updated, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("stories service error", attrs...)
}
