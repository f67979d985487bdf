package leaderboard

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
)

// invalidator is the part of Service the subscriber needs.
type invalidator interface {
	Invalidate(ctx context.Context, questionID uuid.UUID) error
}

// Subscriber drops rankings whenever a question's stats are published,
// which happens after every choice create, toggle, reassignment and batch
// finalization.
type Subscriber struct {
	redis   *redis.Client
	svc     invalidator
	channel string
	logger  zerolog.Logger
}

// NewSubscriber creates a Pub/Sub driven ranking invalidator.
func NewSubscriber(redis *redis.Client, svc invalidator, channel string, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		redis:   redis,
		svc:     svc,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_subscriber").Logger(),
	}
}

// Run subscribes to the stats channel and blocks until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.redis == nil || s.svc == nil {
		return nil
	}

	sub := s.redis.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var stats model.QuestionStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode question stats payload")
		return
	}
	if err := s.svc.Invalidate(ctx, stats.QuestionID); err != nil {
		s.logger.Warn().Err(err).Str("question_id", stats.QuestionID.String()).Msg("failed to invalidate ranking")
	}
}
