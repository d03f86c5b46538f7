package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisChannelPrefix = "smartblood:changes:"

// RedisSync fans change events out over Redis pub/sub, one channel per collection.
type RedisSync struct {
	client *redis.Client
}

func NewRedisSync(client *redis.Client) *RedisSync {
	return &RedisSync{client: client}
}

func redisChannel(collection string) string {
	return redisChannelPrefix + collection
}

func (s *RedisSync) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := s.client.Publish(ctx, redisChannel(event.Collection()), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event for %s: %w", event.Path, err)
	}
	return nil
}

func (s *RedisSync) Subscribe(ctx context.Context, path string) (<-chan ChangeEvent, error) {
	collection := ChangeEvent{Path: path}.Collection()
	pubsub := s.client.Subscribe(ctx, redisChannel(collection))

	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	out := make(chan ChangeEvent)
	messages := pubsub.Channel()

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logrus.WithError(err).WithField("channel", msg.Channel).Warn("Skipping malformed change event")
					continue
				}
				if !matches(path, event) {
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *RedisSync) Close() error {
	return nil
}
