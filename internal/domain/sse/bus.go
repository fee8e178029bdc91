// Package sse implements the SSE session bus: one process-wide broadcast
// channel that every Publish enqueues onto, drained by a single dispatch
// loop that fans each event out to the one subscriber channel whose session
// id matches — per-subscriber filtering over a shared channel, not an actor
// per session. Grounded on the session package shape and the streaming
// idiom of the inbound HTTP handler this replaces.
package sse

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the bounded per-subscriber queue depth; a subscriber
// that cannot keep up is disconnected rather than blocking publishers or
// reordering messages.
const subscriberBuffer = 64

// busBuffer bounds the shared broadcast channel itself: Publish never
// blocks past this depth, it drops instead.
const busBuffer = 256

// Event is one message carried on the bus, tagged with the session it
// belongs to.
type Event struct {
	SessionID string
	Name      string // optional SSE "event:" field
	Data      []byte
}

// Bus is the single process-wide broadcast channel. Every Publish enqueues
// onto one shared chan Event; a single background goroutine drains it and
// delivers each event to the subscriber channel matching its session id.
// Publish never blocks: a saturated bus drops the event, and a full
// subscriber queue drops that subscriber, never the publisher.
type Bus struct {
	events chan Event

	mu          sync.RWMutex
	subscribers map[string]chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewBus creates an empty Bus and starts its dispatch loop.
func NewBus() *Bus {
	b := &Bus{
		events:      make(chan Event, busBuffer),
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// run is the bus's one dispatch loop: every event published anywhere in the
// process passes through here before reaching a subscriber.
func (b *Bus) run() {
	for {
		select {
		case ev := <-b.events:
			b.deliver(ev)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	c, ok := b.subscribers[ev.SessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c <- ev:
	default:
		// Slow subscriber: terminate its connection rather than reorder or
		// block the dispatch loop for every other session.
		b.unsubscribe(ev.SessionID)
	}
}

// Subscribe registers a fresh session id and returns the channel its
// SSE connection should read from, plus an unsubscribe func. Generates a
// fresh UUID v4 session id.
func (b *Bus) Subscribe() (sessionID string, ch <-chan Event, unsubscribe func()) {
	id := uuid.New().String()
	c, unsub := b.subscribeID(id)
	return id, c, unsub
}

// SubscribeID registers an explicit session id (used when the caller
// already minted one, e.g. to echo a client-supplied mcp-session-id).
func (b *Bus) SubscribeID(sessionID string) (ch <-chan Event, unsubscribe func()) {
	return b.subscribeID(sessionID)
}

func (b *Bus) subscribeID(sessionID string) (chan Event, func()) {
	c := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[sessionID] = c
	b.mu.Unlock()
	return c, func() { b.unsubscribe(sessionID) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	if c, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(c)
	}
	b.mu.Unlock()
}

// Publish enqueues event onto the shared broadcast channel. Within one
// session id, publication order is preserved end to end (buffered channel
// send into the dispatch loop, then into the subscriber's own buffered
// channel); cross-session ordering is not guaranteed.
func (b *Bus) Publish(event Event) {
	select {
	case b.events <- event:
	default:
		// Bus itself saturated: drop rather than block the publisher.
	}
}

// Count returns the number of currently connected subscribers, wired into
// the active_sessions gauge.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// CloseAll disconnects every subscriber and stops the dispatch loop, used
// on shutdown.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	for id, c := range b.subscribers {
		close(c)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	b.closeOnce.Do(func() { close(b.done) })
}
