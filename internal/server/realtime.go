package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventSaveState announces an autosave or snapshot outcome.
	RealtimeEventSaveState = "save-state"
	realtimeSourceBackend  = "loom-backend"
)

// SaveStateMessage is pushed to the UI so it can render the saved / not-yet-
// saved indicator without polling.
type SaveStateMessage struct {
	StoryID   string
	EventType string
	Outcome   string
	ErrorText string
	Timestamp time.Time
}

// SaveStateDispatcher fans save-state messages out to the subscribers of a
// story. Slow subscribers drop messages rather than block the writer.
type SaveStateDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*saveStateSubscriber
	nextID      int64
	bufferSize  int
}

type saveStateSubscriber struct {
	id     int64
	stream chan SaveStateMessage
}

func NewSaveStateDispatcher() *SaveStateDispatcher {
	return &SaveStateDispatcher{
		subscribers: make(map[string]map[int64]*saveStateSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for a story's save-state messages until ctx is done.
func (d *SaveStateDispatcher) Subscribe(ctx context.Context, storyID string) (<-chan SaveStateMessage, func()) {
	if storyID == "" {
		ch := make(chan SaveStateMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &saveStateSubscriber{
		id:     d.nextSequence(),
		stream: make(chan SaveStateMessage, d.bufferSize),
	}
	d.registerSubscriber(storyID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(storyID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a message to every current subscriber of the story.
func (d *SaveStateDispatcher) Publish(message SaveStateMessage) {
	if message.StoryID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.StoryID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*saveStateSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *SaveStateDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *SaveStateDispatcher) registerSubscriber(storyID string, subscriber *saveStateSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[storyID]; !ok {
		d.subscribers[storyID] = make(map[int64]*saveStateSubscriber)
	}
	d.subscribers[storyID][subscriber.id] = subscriber
}

func (d *SaveStateDispatcher) unregisterSubscriber(storyID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[storyID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, storyID)
		}
	}
	d.mu.Unlock()
}
