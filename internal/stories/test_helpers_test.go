package stories

import (
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// sequenceIDGenerator issues zero-padded identifiers so insertion order and
// lexical order agree, the same property UUIDv7 gives production code.
type sequenceIDGenerator struct {
	mu    sync.Mutex
	count int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count++
	return fmt.Sprintf("id-%06d", g.count), nil
}

// tickingClock advances one second per reading so creation times order
// deterministically without sleeping.
type tickingClock struct {
	mu      sync.Mutex
	current int64
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return time.Unix(1700000000+c.current, 0).UTC()
}

func newTestService(t *testing.T, maxSnapshots int) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:stories_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Story{}, &Version{}, &Snapshot{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &tickingClock{}
	service, err := NewService(ServiceConfig{
		Database:     db,
		Clock:        clock.Now,
		IDProvider:   &sequenceIDGenerator{},
		MaxSnapshots: maxSnapshots,
	})
	if err != nil {
		t.Fatalf("failed to construct stories service: %v", err)
	}

	return service, db
}

func mustStoryID(t *testing.T, value string) StoryID {
	t.Helper()
	id, err := NewStoryID(value)
	if err != nil {
		t.Fatalf("unexpected story id error: %v", err)
	}
	return id
}

func mustVersionID(t *testing.T, value string) VersionID {
	t.Helper()
	id, err := NewVersionID(value)
	if err != nil {
		t.Fatalf("unexpected version id error: %v", err)
	}
	return id
}

func mustSnapshotID(t *testing.T, value string) SnapshotID {
	t.Helper()
	id, err := NewSnapshotID(value)
	if err != nil {
		t.Fatalf("unexpected snapshot id error: %v", err)
	}
	return id
}

func mustVersionName(t *testing.T, value string) VersionName {
	t.Helper()
	name, err := NewVersionName(value)
	if err != nil {
		t.Fatalf("unexpected version name error: %v", err)
	}
	return name
}

// assertPointerInvariant checks that the story's active snapshot belongs to
// its active version.
func assertPointerInvariant(t *testing.T, db *gorm.DB, storyID StoryID) {
	t.Helper()

	var story Story
	if err := db.Where("story_id = ?", storyID.String()).Take(&story).Error; err != nil {
		t.Fatalf("failed to load story: %v", err)
	}
	if story.ActiveVersionID == nil || story.ActiveSnapshotID == nil {
		t.Fatalf("story %s has unset active pointers", storyID.String())
	}

	var snapshot Snapshot
	if err := db.Where("snapshot_id = ?", *story.ActiveSnapshotID).Take(&snapshot).Error; err != nil {
		t.Fatalf("failed to load active snapshot: %v", err)
	}
	if snapshot.VersionID != *story.ActiveVersionID {
		t.Fatalf("active snapshot %s belongs to version %s, story points at version %s",
			snapshot.SnapshotID, snapshot.VersionID, *story.ActiveVersionID)
	}
}
