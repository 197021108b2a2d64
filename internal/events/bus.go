// Package events carries one-way notifications to the embedding layer
// (UI, editor plugin). The core publishes and never waits for an
// acknowledgment; a slow subscriber drops events rather than blocking
// a query.
package events

import "sync"

// Event names published by the core.
const (
	SpatialIndexReady = "spatial-index-ready"
	ChunksReady       = "chunks-ready"
	HighlightEntities = "highlight-entities"
)

// SpatialIndexReadyPayload announces a freshly built octree.
type SpatialIndexReadyPayload struct {
	ModelID string `json:"model_id"`
	Buffer  []byte `json:"buffer"`
}

// ChunksReadyPayload announces a freshly built chunk set.
type ChunksReadyPayload struct {
	ModelID       string `json:"model_id"`
	ChunkCount    int    `json:"chunk_count"`
	TotalEntities int    `json:"total_entities"`
}

// HighlightPayload asks the embedding layer to highlight entities.
type HighlightPayload struct {
	ExpressIDs []uint32 `json:"express_ids"`
	GlobalIDs  []string `json:"global_ids,omitempty"`
}

// Event is one published notification.
type Event struct {
	Name    string
	Payload any
}

// Bus is a fire-and-forget fan-out. Subscriber channels are buffered;
// when a buffer is full the event is dropped for that subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a receive channel for all future events.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers to every subscriber without blocking.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
