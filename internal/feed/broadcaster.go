package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
	ws "github.com/gokatarajesh/pairwise/pkg/http/ws"
)

// Broadcaster listens for published stats and forwards them to the
// connections following each question.
type Broadcaster struct {
	redis   *redis.Client
	hub     *ws.Hub
	channel string
	logger  zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered stats broadcaster.
func NewBroadcaster(redis *redis.Client, hub *ws.Hub, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = defaultChannel
	}
	return &Broadcaster{
		redis:   redis,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "stats_broadcaster").Logger(),
	}
}

// Run subscribes to the stats channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
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
			b.forward(msg.Payload)
		}
	}
}

func (b *Broadcaster) forward(payload string) {
	var stats model.QuestionStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode question stats payload")
		return
	}
	if b.hub.Subscribers(stats.QuestionID) == 0 {
		return
	}

	msg, err := ws.NewMessage(ws.TypeQuestionStats, toPayload(stats))
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal question stats message")
		return
	}
	if err := b.hub.BroadcastToQuestion(stats.QuestionID, msg); err != nil {
		b.logger.Warn().Err(err).Str("question_id", stats.QuestionID.String()).Msg("failed to broadcast question stats")
	}
}

func toPayload(s model.QuestionStats) ws.QuestionStatsPayload {
	return ws.QuestionStatsPayload{
		QuestionID:           s.QuestionID.String(),
		ChoicesCount:         s.ChoicesCount,
		InactiveChoicesCount: s.InactiveChoicesCount,
		ActiveChoicesCount:   s.ChoicesCount - s.InactiveChoicesCount,
		PromptsCount:         s.PromptsCount,
	}
}
