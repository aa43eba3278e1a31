package fanout

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/metrics"
)

const (
	amqpExchange     = "moodshare.hints"
	amqpDialAttempts = 5
	amqpDialBaseWait = 500 * time.Millisecond
	amqpDialMaxWait  = 30 * time.Second
)

// AMQPNotifier fans hints out through a RabbitMQ topic exchange. Each
// subscription gets its own exclusive auto-delete queue bound to the
// hint topic, so a hint reaches every node's subscribers.
type AMQPNotifier struct {
	conn *amqp091.Connection
	pub  *amqp091.Channel

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewAMQPNotifier dials the broker with exponential backoff and
// declares the hint exchange.
func NewAMQPNotifier(ctx context.Context, url string) (*AMQPNotifier, error) {
	conn, err := dialWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPNotifier{
		conn: conn,
		pub:  ch,
		subs: make(map[*Subscription]struct{}),
	}, nil
}

func dialWithRetry(ctx context.Context, url string) (*amqp091.Connection, error) {
	var lastErr error
	for i := 1; i <= amqpDialAttempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			if i > 1 {
				log.Info().Int("attempt", i).Msg("AMQP connected")
			}
			return conn, nil
		}
		lastErr = err

		sleep := amqpDialBaseWait * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > amqpDialMaxWait {
			sleep = amqpDialMaxWait
		}
		log.Warn().Err(err).Int("attempt", i).Dur("sleep", sleep).Msg("AMQP dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// Publish sends the hint to the topic exchange with the topic as the
// routing key. Hints are transient; a dropped hint only costs a refetch.
func (n *AMQPNotifier) Publish(ctx context.Context, hint Hint) error {
	body, err := json.Marshal(hint)
	if err != nil {
		return err
	}
	return n.pub.PublishWithContext(
		ctx, amqpExchange, hint.Topic, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a fresh exclusive queue to the topic and pumps its
// deliveries into a buffered local channel.
func (n *AMQPNotifier) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	amqpCh, err := n.conn.Channel()
	if err != nil {
		return nil, err
	}
	q, err := amqpCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		amqpCh.Close()
		return nil, err
	}
	if err := amqpCh.QueueBind(q.Name, topic, amqpExchange, false, nil); err != nil {
		amqpCh.Close()
		return nil, err
	}
	deliveries, err := amqpCh.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		amqpCh.Close()
		return nil, err
	}

	ch := make(chan Hint, subscriberBuffer)
	sub := &Subscription{ch: ch}

	var once sync.Once
	sub.stop = func() {
		once.Do(func() {
			amqpCh.Close()
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
		for d := range deliveries {
			var hint Hint
			if err := json.Unmarshal(d.Body, &hint); err != nil {
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

// Close cancels open subscriptions and closes the broker connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	n.pub.Close()
	return n.conn.Close()
}
