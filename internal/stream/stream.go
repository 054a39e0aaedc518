// Package stream fans task lifecycle events out to live subscribers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event kinds published by the task manager.
const (
	TaskCreated    = "task.created"
	TaskUpdated    = "task.updated"
	TaskCompleted  = "task.completed"
	TaskDeleted    = "task.deleted"
	CommentCreated = "comment.created"
)

// Event describes one change to a task. Payloads carry identifiers only;
// subscribers re-read what they need through the API.
type Event struct {
	Type       string    `json:"type"`
	TaskID     string    `json:"task_id"`
	ActorID    string    `json:"actor_id"`
	Status     string    `json:"status,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CommentID  string    `json:"comment_id,omitempty"`
	At         time.Time `json:"at"`
}

const subscriberBuffer = 16

// Broker fan-outs events to all active subscribers (SSE clients).
type Broker struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Uint64
}

// New initialises a broker with no subscribers.
func New() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
