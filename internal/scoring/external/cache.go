package external

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/scoring"
)

const defaultCacheTTL = time.Minute

// CachedSource keeps probabilities in Redis for a short TTL so repeated
// aggregate scores for one question hit the statistics service once.
type CachedSource struct {
	inner  scoring.ProbabilitySource
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ scoring.ProbabilitySource = (*CachedSource)(nil)

func NewCachedSource(inner scoring.ProbabilitySource, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "probability_cache").Logger(),
	}
}

func (c *CachedSource) key(questionID uuid.UUID) string {
	return "bt_probs:" + questionID.String()
}

func (c *CachedSource) BradleyTerryProbabilities(ctx context.Context, questionID uuid.UUID) (map[uuid.UUID]float64, error) {
	data, err := c.client.Get(ctx, c.key(questionID)).Bytes()
	switch {
	case err == nil:
		var probs map[uuid.UUID]float64
		if err := json.Unmarshal(data, &probs); err == nil {
			return probs, nil
		}
		c.logger.Warn().Str("question_id", questionID.String()).Msg("discarding undecodable cached probabilities")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Msg("probability cache read failed")
	}

	probs, err := c.inner.BradleyTerryProbabilities(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(probs); err == nil {
		if err := c.client.Set(ctx, c.key(questionID), data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("probability cache write failed")
		}
	}
	return probs, nil
}

// Invalidate drops the cached probabilities of a question.
func (c *CachedSource) Invalidate(ctx context.Context, questionID uuid.UUID) error {
	return c.client.Del(ctx, c.key(questionID)).Err()
}
