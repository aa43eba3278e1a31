package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/metrics"
)

// RedisNotifier fans hints out through Redis Pub/Sub so every node in
// a multi-node deployment sees publishes from every other node.
type RedisNotifier struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewRedisNotifier creates a Redis-backed notifier on an existing client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Publish sends the hint to the Redis channel named after its topic.
func (n *RedisNotifier) Publish(ctx context.Context, hint Hint) error {
	payload, err := json.Marshal(hint)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, "fanout:"+hint.Topic, payload).Err()
}

// Subscribe opens a Redis subscription for the topic and pumps its
// messages into a buffered local channel.
func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := n.client.Subscribe(ctx, "fanout:"+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := make(chan Hint, subscriberBuffer)
	sub := &Subscription{ch: ch}

	var once sync.Once
	sub.stop = func() {
		once.Do(func() {
			pubsub.Close()
			n.mu.Lock()
			delete(n.subs, sub)
			n.mu.Unlock()
		})
	}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range pubsub.Channel() {
			var hint Hint
			if err := json.Unmarshal([]byte(msg.Payload), &hint); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("Malformed fanout hint")
				continue
			}
			select {
			case ch <- hint:
			default:
				metrics.FanoutHintsDropped.Inc()
			}
		}
	}()

	return sub, nil
}

// Close cancels every open subscription. The Redis client itself is
// owned by the caller and stays open.
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}
