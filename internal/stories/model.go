package stories

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidStoryID indicates that a story identifier is empty or exceeds storage bounds.
	ErrInvalidStoryID = errors.New("stories: invalid story id")
	// ErrInvalidVersionID indicates that a version identifier is empty or exceeds storage bounds.
	ErrInvalidVersionID = errors.New("stories: invalid version id")
	// ErrInvalidSnapshotID indicates that a snapshot identifier is empty or exceeds storage bounds.
	ErrInvalidSnapshotID = errors.New("stories: invalid snapshot id")
	// ErrInvalidVersionName indicates that a version name is empty or exceeds storage bounds.
	ErrInvalidVersionName = errors.New("stories: invalid version name")
)

// StoryID represents a validated story identifier.
type StoryID string

// NewStoryID validates raw input and returns a StoryID.
func NewStoryID(rawInput string) (StoryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidStoryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidStoryID, maxIdentifierLength)
	}
	return StoryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id StoryID) String() string {
	return string(id)
}

// VersionID represents a validated version identifier.
type VersionID string

// NewVersionID validates raw input and returns a VersionID.
func NewVersionID(rawInput string) (VersionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVersionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVersionID, maxIdentifierLength)
	}
	return VersionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id VersionID) String() string {
	return string(id)
}

// SnapshotID represents a validated snapshot identifier.
type SnapshotID string

// NewSnapshotID validates raw input and returns a SnapshotID.
func NewSnapshotID(rawInput string) (SnapshotID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSnapshotID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSnapshotID, maxIdentifierLength)
	}
	return SnapshotID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SnapshotID) String() string {
	return string(id)
}

// VersionName represents a validated user-visible version name.
// Name comparison is case-sensitive: "original" and "Original" are distinct.
type VersionName string

// NewVersionName validates raw input and returns a VersionName.
func NewVersionName(rawInput string) (VersionName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVersionName)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVersionName, maxIdentifierLength)
	}
	return VersionName(trimmed), nil
}

// String returns the underlying name.
func (name VersionName) String() string {
	return string(name)
}

// OriginalVersionName is assigned to the version created alongside a new story.
const OriginalVersionName VersionName = "Original"

// Story models a unit of writing content. The active version and snapshot
// are foreign-key pointers on the story row itself; they are null only
// inside the creation transaction, before the initial version exists.
type Story struct {
	StoryID             string  `gorm:"column:story_id;primaryKey;size:190;not null"`
	CollectionID        string  `gorm:"column:collection_id;size:190;not null;default:'';index:idx_stories_collection"`
	Title               string  `gorm:"column:title;type:text;not null"`
	WordCount           int64   `gorm:"column:word_count;not null;default:0"`
	CreatedAtSeconds    int64   `gorm:"column:created_at_s;not null"`
	LastEditedAtSeconds int64   `gorm:"column:last_edited_at_s;not null"`
	ActiveVersionID     *string `gorm:"column:active_version_id;size:190"`
	ActiveSnapshotID    *string `gorm:"column:active_snapshot_id;size:190"`
}

// TableName provides the explicit table binding for GORM.
func (Story) TableName() string {
	return "stories"
}

// Version models a named alternate line of a story's content.
type Version struct {
	VersionID        string `gorm:"column:version_id;primaryKey;size:190;not null"`
	StoryID          string `gorm:"column:story_id;size:190;not null;uniqueIndex:idx_versions_story_name,priority:1"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_versions_story_name,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "story_versions"
}

// Snapshot models a point-in-time text save inside a version. Rows are
// immutable except for the crash-protection autosave path, which overwrites
// the content of the story's active snapshot in place.
type Snapshot struct {
	SnapshotID       string `gorm:"column:snapshot_id;primaryKey;size:190;not null"`
	VersionID        string `gorm:"column:version_id;size:190;not null;index:idx_snapshots_version_created,priority:1"`
	Content          string `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_snapshots_version_created,priority:2"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "story_snapshots"
}

// HydratedStory bundles a story with its active version and snapshot so the
// editor can open it in a single read.
type HydratedStory struct {
	Story          Story
	ActiveVersion  Version
	ActiveSnapshot Snapshot
}
