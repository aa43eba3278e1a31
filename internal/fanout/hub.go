package fanout

import (
	"context"
	"sync"

	"github.com/dav22-wa/uni-mood-share/internal/metrics"
)

const subscriberBuffer = 16

// Hub is the in-process fan-out driver. It is the default for
// single-node deployments and for tests.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]chan Hint
	closed bool
}

// NewHub creates an in-process notifier.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]chan Hint)}
}

// Publish delivers the hint to every subscriber of its topic. A
// subscriber whose buffer is full misses this hint; it will catch up
// on its next refetch.
func (h *Hub) Publish(_ context.Context, hint Hint) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	for _, ch := range h.topics[hint.Topic] {
		select {
		case ch <- hint:
		default:
			metrics.FanoutHintsDropped.Inc()
		}
	}
	return nil
}

// Subscribe registers a new subscriber for the topic.
func (h *Hub) Subscribe(_ context.Context, topic string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Hint, subscriberBuffer)
	sub := &Subscription{ch: ch}

	var once sync.Once
	sub.stop = func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.remove(topic, sub)
		})
	}

	if h.closed {
		close(ch)
		return sub, nil
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Subscription]chan Hint)
	}
	h.topics[topic][sub] = ch
	return sub, nil
}

// remove must be called with h.mu held.
func (h *Hub) remove(topic string, sub *Subscription) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	if ch, ok := subs[sub]; ok {
		delete(subs, sub)
		close(ch)
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Close shuts down the hub and closes every open subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for topic, subs := range h.topics {
		for sub, ch := range subs {
			delete(subs, sub)
			close(ch)
		}
		delete(h.topics, topic)
	}
	return nil
}
