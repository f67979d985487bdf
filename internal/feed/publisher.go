// Package feed streams question counter snapshots to WebSocket followers.
// Mutations publish to a Redis channel so every API instance can forward the
// update to its own connections.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gokatarajesh/pairwise/internal/model"
)

const defaultChannel = "pairwise:question_stats"

// Publisher pushes question stats onto the Redis channel.
type Publisher struct {
	redis   *redis.Client
	channel string
}

// NewPublisher creates a stats publisher.
func NewPublisher(redis *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &Publisher{redis: redis, channel: channel}
}

// PublishStats broadcasts a counter snapshot.
func (p *Publisher) PublishStats(ctx context.Context, stats model.QuestionStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish question stats: %w", err)
	}
	return nil
}
