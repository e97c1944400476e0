package report

import (
	"sync"

	"gpustandby/internal/model"
)

// Hub fans failover event updates out to dashboard websocket subscribers.
// Slow subscribers are skipped, not waited on.
type Hub struct {
	mu   sync.Mutex
	subs map[chan *model.FailoverEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan *model.FailoverEvent]struct{})}
}

func (h *Hub) Subscribe() chan *model.FailoverEvent {
	ch := make(chan *model.FailoverEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan *model.FailoverEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Broadcast(event *model.FailoverEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
