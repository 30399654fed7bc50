package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSender appends events to a Redis list for an out-of-process shipper.
type RedisSender struct {
	client *redis.Client
	key    string
}

func NewRedisSender(client *redis.Client, key string) *RedisSender {
	return &RedisSender{client: client, key: key}
}

func (s *RedisSender) Name() string {
	return "redis"
}

func (s *RedisSender) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode tracking event: %w", err)
	}

	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("push tracking event to %s: %w", s.key, err)
	}

	return nil
}
