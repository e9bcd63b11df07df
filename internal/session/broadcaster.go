package session

import (
	"sync"

	"github.com/google/uuid"
)

const listenerBuffer = 64

// Update types sent to listeners.
const (
	UpdateRecognitionResult = "recognition_result"
	UpdateStatusMessage     = "status_message"
	UpdateCameraStopped     = "camera_stopped"
	UpdateSessionChanged    = "session_changed"
)

// Update is a single message for UI listeners.
type Update struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Subscription is a listener registered with a Broadcaster.
type Subscription struct {
	ID string
	C  <-chan Update

	ch chan Update
}

// Broadcaster fans updates out to any number of listeners. A listener whose
// buffer is full misses the update.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]chan Update
	closed    bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[string]chan Update)}
}

// Subscribe registers a new listener. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Update, listenerBuffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.listeners[sub.ID] = ch
	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.listeners[sub.ID]; ok {
		delete(b.listeners, sub.ID)
		close(ch)
	}
}

// Send delivers u to every listener without blocking.
func (b *Broadcaster) Send(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- u:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Len returns the number of listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close closes every listener channel. Later subscriptions are closed
// immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.listeners {
		delete(b.listeners, id)
		close(ch)
	}
}
