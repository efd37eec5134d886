// Package broadcast fans a Pipeline's events out to every subscriber
// watching a project: a map of per-subscriber channels guarded by a mutex,
// with best-effort non-blocking delivery so one slow dashboard client can
// never stall a Pipeline.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgecrew/ralph/internal/pipeline"
)

// Message is the wire shape of one broadcast event: a {type, projectId,
// payload} envelope plus a server-stamped id and timestamp.
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ProjectID string         `json:"projectId"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// subscriberBuffer is how many pending messages a slow subscriber can
// accumulate before Publish starts dropping for it.
const subscriberBuffer = 64

// Hub fans out every Envelope it is given to every current subscriber. It
// implements pipeline.Publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Message]struct{}
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[chan Message]struct{})}
}

// Subscribe registers a new listener and returns the channel it should
// drain. Callers must call Unsubscribe when done to avoid leaking the
// channel.
func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Safe to call more than once.
func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers envelope to every current subscriber, dropping it for
// any subscriber whose buffer is full rather than blocking the caller —
// the Pipeline goroutine that called this must never stall on a slow
// dashboard client.
func (h *Hub) Publish(envelope pipeline.Envelope) {
	msg := Message{
		ID:        uuid.New().String(),
		Type:      envelope.Type,
		ProjectID: envelope.ProjectID,
		Payload:   envelope.Payload,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
