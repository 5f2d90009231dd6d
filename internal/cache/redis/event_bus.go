package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/seafarergames/tradewinds/internal/domain"
)

const (
	// eventChannel carries live events over Pub/Sub.
	eventChannel = "economy:events"

	// eventStream keeps a trimmed durable tail of the same events so a
	// consumer that reconnects can replay recent history.
	eventStream = "economy:events:log"

	streamMaxLen    int64 = 10000
	subscriberQueue       = 128
)

// EventBus implements domain.EventBus on Redis: Pub/Sub for live fan-out
// plus a capped stream for replay. Events travel as tagged JSON envelopes;
// a payload that does not decode to a known event kind is dropped with a
// warning rather than surfaced to subscribers.
type EventBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ domain.EventBus = (*EventBus)(nil)

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish encodes the event and sends it to the live channel and the
// durable stream.
func (b *EventBus) Publish(ctx context.Context, evt domain.Event) error {
	payload, err := domain.MarshalEvent(evt)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", evt.Kind(), err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", evt.Kind(), err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns a channel of decoded
// events. The subscription closes when the context is cancelled; the
// returned channel is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)

	// Receive the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, subscriberQueue)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				evt, err := domain.UnmarshalEvent([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("dropping undecodable event",
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Replay reads up to count events from the durable stream starting after
// lastID ("0" reads from the beginning, "$" only new entries). It returns
// the decoded events and the stream id to resume from.
func (b *EventBus) Replay(ctx context.Context, lastID string, count int) ([]domain.Event, string, error) {
	results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{eventStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err == redis.Nil {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, fmt.Errorf("redis: replay events: %w", err)
	}

	var events []domain.Event
	next := lastID
	for _, s := range results {
		for _, msg := range s.Messages {
			next = msg.ID
			raw, ok := msg.Values["payload"]
			if !ok {
				continue
			}
			var data []byte
			switch v := raw.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			evt, err := domain.UnmarshalEvent(data)
			if err != nil {
				b.logger.Warn("dropping undecodable stream event",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			events = append(events, evt)
		}
	}
	return events, next, nil
}
