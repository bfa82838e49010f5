package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
)

const (
	// DefaultAutosaveDelay is the idle time after the last edit before the
	// crash-protection autosave overwrites the active snapshot.
	DefaultAutosaveDelay = 30 * time.Second
	// DefaultCharacterThreshold is the net growth in characters that
	// triggers a history snapshot in character-count mode.
	DefaultCharacterThreshold = 500
)

var (
	errMissingPersister = errors.New("scheduler: persister is required")
	noOpLogger          = zap.NewNop()
)

// TriggerMode selects the policy that creates history snapshots.
type TriggerMode string

const (
	// TriggerOnLeave snapshots when the editing session is torn down.
	TriggerOnLeave TriggerMode = "on_leave"
	// TriggerCharacterCount snapshots after enough net character growth.
	TriggerCharacterCount TriggerMode = "character_count"
)

// TriggerConfig is the tagged-variant snapshot policy. CharacterThreshold is
// only meaningful in character-count mode.
type TriggerConfig struct {
	Mode               TriggerMode
	CharacterThreshold int
}

// ParseTriggerMode maps a configuration string onto a TriggerMode.
func ParseTriggerMode(value string) (TriggerMode, error) {
	switch TriggerMode(value) {
	case TriggerOnLeave:
		return TriggerOnLeave, nil
	case TriggerCharacterCount, "":
		return TriggerCharacterCount, nil
	default:
		return "", errors.New("scheduler: unknown trigger mode " + value)
	}
}

// EventType classifies scheduler outcomes surfaced to the UI.
type EventType string

const (
	EventAutosaved       EventType = "autosaved"
	EventAutosaveFailed  EventType = "autosave_failed"
	EventSnapshotCreated EventType = "snapshot_created"
	EventSnapshotFailed  EventType = "snapshot_failed"
)

// Event describes a completed or failed background write. Failures are
// informational: the editor keeps its buffer and the next edit retries.
type Event struct {
	StoryID stories.StoryID
	Type    EventType
	Err     error
}

// Persister is the slice of the content service the scheduler writes through.
type Persister interface {
	UpdateActiveSnapshotContent(ctx context.Context, storyID stories.StoryID, content string, wordCount int64) (stories.Snapshot, error)
	CreateSnapshot(ctx context.Context, storyID stories.StoryID, content string) (stories.Snapshot, error)
}

type stopTimer interface {
	Stop() bool
}

// Config describes scheduler dependencies and policy.
type Config struct {
	Persister     Persister
	Logger        *zap.Logger
	AutosaveDelay time.Duration
	Trigger       TriggerConfig
	Notify        func(Event)
	// NewTimer schedules a callback after a delay. Defaults to
	// time.AfterFunc; tests inject a manual trigger.
	NewTimer func(time.Duration, func()) stopTimer
}

// session is the per-open-story debounce state machine. It is reset
// wholesale whenever the edited story changes, so no baseline or pending
// timer can leak from one story into another.
type session struct {
	storyID            stories.StoryID
	content            string
	lastSnapshotLength int
	initialObservation bool
	dirty              bool
	pending            stopTimer
	generation         int64
}

// Scheduler coalesces editor changes into at most one pending write per
// story: an in-place autosave after idle time, plus history snapshots per
// the configured trigger policy.
type Scheduler struct {
	mu        sync.Mutex
	persister Persister
	logger    *zap.Logger
	delay     time.Duration
	trigger   TriggerConfig
	notify    func(Event)
	newTimer  func(time.Duration, func()) stopTimer
	current   *session
	closed    bool
}

// New validates the configuration and constructs a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Persister == nil {
		return nil, errMissingPersister
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	delay := cfg.AutosaveDelay
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}

	trigger := cfg.Trigger
	if trigger.Mode == "" {
		trigger.Mode = TriggerCharacterCount
	}
	if trigger.Mode == TriggerCharacterCount && trigger.CharacterThreshold <= 0 {
		trigger.CharacterThreshold = DefaultCharacterThreshold
	}

	notify := cfg.Notify
	if notify == nil {
		notify = func(Event) {}
	}

	newTimer := cfg.NewTimer
	if newTimer == nil {
		newTimer = func(d time.Duration, fn func()) stopTimer {
			return time.AfterFunc(d, fn)
		}
	}

	return &Scheduler{
		persister: cfg.Persister,
		logger:    logger,
		delay:     delay,
		trigger:   trigger,
		notify:    notify,
		newTimer:  newTimer,
	}, nil
}

// Reconfigure swaps the snapshot trigger policy at runtime. The autosave
// debounce and any pending timer are unaffected.
func (s *Scheduler) Reconfigure(trigger TriggerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trigger.Mode == TriggerCharacterCount && trigger.CharacterThreshold <= 0 {
		trigger.CharacterThreshold = DefaultCharacterThreshold
	}
	s.trigger = trigger
}

// teardownState captures what a detached session still owed the store, so
// the write can happen outside the scheduler lock.
type teardownState struct {
	storyID stories.StoryID
	content string
	changed bool
	dirty   bool
	onLeave bool
}

// detachCurrentLocked cancels the pending timer and removes the current
// session, returning the write it still owes (nil when there is no session).
func (s *Scheduler) detachCurrentLocked() *teardownState {
	sess := s.current
	if sess == nil {
		return nil
	}
	s.cancelPendingLocked(sess)
	state := &teardownState{
		storyID: sess.storyID,
		content: sess.content,
		changed: utf8.RuneCountInString(sess.content) != sess.lastSnapshotLength || sess.dirty,
		dirty:   sess.dirty,
		onLeave: s.trigger.Mode == TriggerOnLeave,
	}
	s.current = nil
	return state
}

// flushTeardown performs a detached session's final best-effort write: a
// history snapshot in on-leave mode when the content changed, otherwise an
// in-place autosave of dirty content.
func (s *Scheduler) flushTeardown(ctx context.Context, state *teardownState) {
	if state == nil {
		return
	}
	if state.onLeave && state.changed {
		s.createSnapshot(ctx, state.storyID, state.content)
		return
	}
	if state.dirty {
		s.autosave(ctx, state.storyID, state.content)
	}
}

// Observe reports the editor's full content for a story. The first
// observation of a story establishes the baseline and writes nothing — the
// initial load is not a change. Later observations restart the autosave
// debounce and may create a character-count history snapshot. Observing a
// different story tears the previous session down the way Leave does, so
// its unsaved content is flushed rather than dropped.
func (s *Scheduler) Observe(ctx context.Context, storyID stories.StoryID, content string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var departed *teardownState
	if s.current != nil && s.current.storyID != storyID {
		departed = s.detachCurrentLocked()
	}
	if s.current == nil {
		s.current = &session{storyID: storyID, initialObservation: true}
	}

	sess := s.current
	if sess.initialObservation {
		sess.initialObservation = false
		sess.content = content
		sess.lastSnapshotLength = utf8.RuneCountInString(content)
		s.mu.Unlock()
		s.flushTeardown(ctx, departed)
		return
	}
	if content == sess.content {
		s.mu.Unlock()
		return
	}

	sess.content = content
	sess.dirty = true
	s.armAutosaveLocked(sess)

	snapshotDue := false
	if s.trigger.Mode == TriggerCharacterCount {
		growth := utf8.RuneCountInString(content) - sess.lastSnapshotLength
		if growth >= s.trigger.CharacterThreshold {
			snapshotDue = true
			sess.lastSnapshotLength = utf8.RuneCountInString(content)
			sess.dirty = false
			s.cancelPendingLocked(sess)
		}
	}
	s.mu.Unlock()

	if snapshotDue {
		s.createSnapshot(ctx, storyID, content)
	}
}

// Leave tears down the editing session for storyID: the pending autosave is
// cancelled and, depending on the trigger mode, the latest content is either
// recorded as a history snapshot (on-leave mode, only if it changed since
// the baseline) or flushed into the active snapshot. Both writes are
// best-effort. A leave for a story that is not the current session is a
// no-op, so a late request cannot tear down another story's session.
func (s *Scheduler) Leave(ctx context.Context, storyID stories.StoryID) {
	s.mu.Lock()
	if s.current == nil || s.current.storyID != storyID {
		s.mu.Unlock()
		return
	}
	state := s.detachCurrentLocked()
	s.mu.Unlock()

	s.flushTeardown(ctx, state)
}

// Flush writes the story's current content into the active snapshot
// immediately and cancels the pending autosave, so a stale debounced write
// cannot land after a newer explicit one. Flushing a story that is not the
// current session is a no-op.
func (s *Scheduler) Flush(ctx context.Context, storyID stories.StoryID) {
	s.mu.Lock()
	sess := s.current
	if sess == nil || sess.storyID != storyID || !sess.dirty {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked(sess)
	content := sess.content
	sess.dirty = false
	s.mu.Unlock()

	s.autosave(ctx, storyID, content)
}

// Reset drops the session for a story without writing anything. Lifecycle
// operations that move the active pointer (version switch, restore, fork)
// call this so a stale debounced write cannot land on the new pointer; the
// editor re-observes after reloading.
func (s *Scheduler) Reset(storyID stories.StoryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.storyID == storyID {
		s.cancelPendingLocked(s.current)
		s.current = nil
	}
}

// Close cancels any pending write and flushes the current session.
func (s *Scheduler) Close(ctx context.Context) {
	s.mu.Lock()
	state := s.detachCurrentLocked()
	s.closed = true
	s.mu.Unlock()

	s.flushTeardown(ctx, state)
}

func (s *Scheduler) armAutosaveLocked(sess *session) {
	s.cancelPendingLocked(sess)
	sess.generation++
	generation := sess.generation
	storyID := sess.storyID
	sess.pending = s.newTimer(s.delay, func() {
		s.fireAutosave(storyID, generation)
	})
}

func (s *Scheduler) cancelPendingLocked(sess *session) {
	if sess.pending != nil {
		sess.pending.Stop()
		sess.pending = nil
	}
	sess.generation++
}

// fireAutosave runs on the timer goroutine. The generation check discards a
// timer that was superseded between firing and acquiring the lock, so only
// the latest content is ever written.
func (s *Scheduler) fireAutosave(storyID stories.StoryID, generation int64) {
	s.mu.Lock()
	sess := s.current
	if s.closed || sess == nil || sess.storyID != storyID || sess.generation != generation {
		s.mu.Unlock()
		return
	}
	content := sess.content
	sess.pending = nil
	sess.dirty = false
	s.mu.Unlock()

	s.autosave(context.Background(), storyID, content)
}

func (s *Scheduler) autosave(ctx context.Context, storyID stories.StoryID, content string) {
	if _, err := s.persister.UpdateActiveSnapshotContent(ctx, storyID, content, -1); err != nil {
		s.logger.Warn("autosave failed",
			zap.String("story_id", storyID.String()),
			zap.Error(err))
		s.markDirty(storyID)
		s.notify(Event{StoryID: storyID, Type: EventAutosaveFailed, Err: err})
		return
	}
	s.notify(Event{StoryID: storyID, Type: EventAutosaved})
}

func (s *Scheduler) createSnapshot(ctx context.Context, storyID stories.StoryID, content string) {
	if _, err := s.persister.CreateSnapshot(ctx, storyID, content); err != nil {
		s.logger.Warn("history snapshot failed",
			zap.String("story_id", storyID.String()),
			zap.Error(err))
		s.markDirty(storyID)
		s.notify(Event{StoryID: storyID, Type: EventSnapshotFailed, Err: err})
		return
	}
	s.notify(Event{StoryID: storyID, Type: EventSnapshotCreated})
}

// markDirty re-flags the session after a failed write so the next edit or
// teardown retries; the editor buffer is the source of truth on failure.
func (s *Scheduler) markDirty(storyID stories.StoryID) {
	s.mu.Lock()
	if s.current != nil && s.current.storyID == storyID {
		s.current.dirty = true
	}
	s.mu.Unlock()
}
