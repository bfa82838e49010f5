package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomlabs/loom/backend/internal/scheduler"
)

func TestSaveStateDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewSaveStateDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "story-1")
	defer cleanup()

	dispatcher.Publish(SaveStateMessage{
		StoryID:   "story-1",
		EventType: string(scheduler.EventAutosaved),
		Outcome:   "ok",
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != string(scheduler.EventAutosaved) {
			t.Fatalf("expected event type %s, got %s", scheduler.EventAutosaved, received.EventType)
		}
		if received.Outcome != "ok" {
			t.Fatalf("expected ok outcome, got %s", received.Outcome)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected save-state message within deadline")
	}
}

func TestSaveStateDispatcherIsolatedByStory(t *testing.T) {
	dispatcher := NewSaveStateDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	firstStream, cleanup := dispatcher.Subscribe(ctx, "story-a")
	defer cleanup()

	secondStream, otherCleanup := dispatcher.Subscribe(otherCtx, "story-b")
	defer otherCleanup()

	dispatcher.Publish(SaveStateMessage{
		StoryID:   "story-b",
		EventType: string(scheduler.EventSnapshotCreated),
		Outcome:   "ok",
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-firstStream:
		t.Fatal("did not expect a message for an unrelated story")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case message := <-secondStream:
		if message.StoryID != "story-b" {
			t.Fatalf("expected story-b, received %s", message.StoryID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message for the subscribed story")
	}
}

func TestNotifyFromSchedulerMapsFailures(t *testing.T) {
	dispatcher := NewSaveStateDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "story-1")
	defer cleanup()

	notify := NotifyFromScheduler(dispatcher)
	notify(scheduler.Event{
		StoryID: "story-1",
		Type:    scheduler.EventAutosaveFailed,
		Err:     errors.New("disk unavailable"),
	})

	select {
	case message := <-stream:
		if message.Outcome != "failed" {
			t.Fatalf("expected failed outcome, got %s", message.Outcome)
		}
		if message.ErrorText != "disk unavailable" {
			t.Fatalf("unexpected error text %s", message.ErrorText)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected save-state message within deadline")
	}
}
