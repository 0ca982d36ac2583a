package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Feed carries store changes to every server instance. Cancelling the
// context passed to Subscribe unsubscribes; the returned channel is closed
// when the subscription ends for any reason.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// RedisFeed is a Feed on top of a Redis pub/sub channel.
type RedisFeed struct {
	redis   *redis.Client
	channel string
}

func NewRedisFeed(redisClient *redis.Client, channel string) *RedisFeed {
	return &RedisFeed{redis: redisClient, channel: channel}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.redis.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := f.redis.Subscribe(ctx, f.channel)
	// wait for the subscription to be confirmed before handing out the channel
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, 64)
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
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logrus.WithError(err).Warn("dropping undecodable feed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
