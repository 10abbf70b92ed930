package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "room:"

// RedisNotifier publishes full room rows on "room:<session id>" so every
// server instance can push them to its own websocket clients.
type RedisNotifier struct {
	redis *redis.Client
	log   *slog.Logger
}

func NewRedisNotifier(client *redis.Client, log *slog.Logger) *RedisNotifier {
	return &RedisNotifier{redis: client, log: log}
}

func ChannelName(sessionID string) string {
	return channelPrefix + sessionID
}

func (n *RedisNotifier) Publish(ctx context.Context, room Room) error {
	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.SessionID, err)
	}
	if err := n.redis.Publish(ctx, ChannelName(room.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen pattern-subscribes to every room channel. The returned channel is
// closed once ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context) (<-chan Room, error) {
	pubsub := n.redis.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	out := make(chan Room, 64)
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
				var r Room
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					n.log.Warn("Dropping malformed room payload", "channel", msg.Channel, "error", err)
					continue
				}
				if r.SessionID == "" {
					r.SessionID = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
