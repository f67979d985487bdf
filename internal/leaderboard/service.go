// Package leaderboard keeps a Redis read model of each question's active
// choices ordered by score.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// Entry is one ranked choice.
type Entry struct {
	Rank     int       `json:"rank"`
	ChoiceID uuid.UUID `json:"choice_id"`
	Data     string    `json:"data"`
	Score    float64   `json:"score"`
}

// Source reports where a ranking was served from.
const (
	SourceCache   = "redis"
	SourceRebuild = "postgres"
)

// ServiceOptions configures ranking behavior.
type ServiceOptions struct {
	TopN           int
	EntryTTL       time.Duration
	RedisKeyPrefix string
}

// Service serves per-question rankings from Redis sorted sets and rebuilds
// them from the store when missing.
type Service struct {
	redis    *redis.Client
	store    storage.Store
	logger   zerolog.Logger
	topN     int
	entryTTL time.Duration
	prefix   string
}

// NewService constructs a ranking service instance.
func NewService(redis *redis.Client, store storage.Store, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 50
	}
	ttl := opts.EntryTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "ranking"
	}
	return &Service{
		redis:    redis,
		store:    store,
		logger:   logger.With().Str("component", "leaderboard").Logger(),
		topN:     topN,
		entryTTL: ttl,
		prefix:   prefix,
	}
}

// Top returns the highest scored active choices of a question.
func (s *Service) Top(ctx context.Context, questionID uuid.UUID, limit int) ([]Entry, string, error) {
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	source := SourceCache
	exists, err := s.redis.Exists(ctx, s.rankingKey(questionID)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("check ranking: %w", err)
	}
	if exists == 0 {
		if err := s.rebuild(ctx, questionID); err != nil {
			return nil, "", err
		}
		source = SourceRebuild
	}

	results, err := s.redis.ZRevRangeWithScores(ctx, s.rankingKey(questionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("fetch ranking: %w", err)
	}
	if len(results) == 0 {
		return []Entry{}, source, nil
	}

	members := make([]string, len(results))
	for i, z := range results {
		members[i] = z.Member.(string)
	}
	labels, err := s.redis.HMGet(ctx, s.labelsKey(questionID), members...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read ranking labels")
		labels = make([]interface{}, len(members))
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		id, err := uuid.Parse(members[i])
		if err != nil {
			s.logger.Warn().Str("member", members[i]).Msg("skipping malformed ranking member")
			continue
		}
		label, _ := labels[i].(string)
		entries = append(entries, Entry{
			Rank:     len(entries) + 1,
			ChoiceID: id,
			Data:     label,
			Score:    z.Score,
		})
	}
	return entries, source, nil
}

// RecordScore updates the ranked score of a choice. Only choices already
// present in a live ranking are touched; everything else is picked up on the
// next rebuild.
func (s *Service) RecordScore(ctx context.Context, c model.Choice, score float64) error {
	key := s.rankingKey(c.QuestionID)
	if !c.Active {
		return s.redis.ZRem(ctx, key, c.ID.String()).Err()
	}
	return s.redis.ZAddXX(ctx, key, redis.Z{Score: score, Member: c.ID.String()}).Err()
}

// Invalidate drops the ranking of a question so the next read rebuilds it.
func (s *Service) Invalidate(ctx context.Context, questionID uuid.UUID) error {
	return s.redis.Del(ctx, s.rankingKey(questionID), s.labelsKey(questionID)).Err()
}

func (s *Service) rebuild(ctx context.Context, questionID uuid.UUID) error {
	var choices []model.Choice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		choices, err = tx.ListChoices(ctx, questionID, storage.ActiveChoices)
		return err
	})
	if err != nil {
		return fmt.Errorf("load active choices: %w", err)
	}

	rankingKey, labelsKey := s.rankingKey(questionID), s.labelsKey(questionID)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, rankingKey, labelsKey)
	if len(choices) > 0 {
		members := make([]redis.Z, len(choices))
		labels := make(map[string]interface{}, len(choices))
		for i, c := range choices {
			members[i] = redis.Z{Score: c.Score, Member: c.ID.String()}
			labels[c.ID.String()] = c.Data
		}
		pipe.ZAdd(ctx, rankingKey, members...)
		pipe.HSet(ctx, labelsKey, labels)
		pipe.Expire(ctx, rankingKey, s.entryTTL)
		pipe.Expire(ctx, labelsKey, s.entryTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild ranking for question %s: %w", questionID, err)
	}

	s.logger.Debug().
		Str("question_id", questionID.String()).
		Int("choices", len(choices)).
		Msg("ranking rebuilt")
	return nil
}

func (s *Service) rankingKey(questionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", s.prefix, questionID)
}

func (s *Service) labelsKey(questionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:labels", s.prefix, questionID)
}
