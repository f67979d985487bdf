package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

const (
	defaultQueuePrefix = "prompt_queue"
	defaultQueueTTL    = 24 * time.Hour
)

// ErrQueueEmpty is returned by Pop when a question has no queued prompt.
var ErrQueueEmpty = errors.New("prompt queue empty")

// QueueOptions configures the Redis-backed catchup queue.
type QueueOptions struct {
	KeyPrefix string
	TTL       time.Duration
}

// Queue holds, per question, the prompt ids ready to be shown next. Catchup
// tasks append the least-voted active prompt; activation marks the queue for
// refill, which drops whatever was queued against the old choice set.
type Queue struct {
	client *redis.Client
	store  storage.Store
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewQueue constructs a catchup prompt queue.
func NewQueue(client *redis.Client, store storage.Store, opts QueueOptions, logger zerolog.Logger) *Queue {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultQueuePrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultQueueTTL
	}
	return &Queue{
		client: client,
		store:  store,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
		logger: logger.With().Str("component", "prompt_queue").Logger(),
	}
}

func (q *Queue) listKey(questionID uuid.UUID) string {
	return q.prefix + ":" + questionID.String()
}

func (q *Queue) refillKey(questionID uuid.UUID) string {
	return q.prefix + ":" + questionID.String() + ":refill"
}

// MarkForRefill empties the question's queue and flags it for backfill.
func (q *Queue) MarkForRefill(ctx context.Context, questionID uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.listKey(questionID))
	pipe.Set(ctx, q.refillKey(questionID), 1, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark prompt queue for refill: %w", err)
	}
	q.logger.Debug().Str("question_id", questionID.String()).Msg("prompt queue marked for refill")
	return nil
}

// NeedsRefill reports whether the queue was marked and not yet backfilled.
func (q *Queue) NeedsRefill(ctx context.Context, questionID uuid.UUID) (bool, error) {
	n, err := q.client.Exists(ctx, q.refillKey(questionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddPromptToQueue picks the least-voted prompt between two active choices
// and appends it to the question's queue. A question with no eligible prompt
// is left untouched and reports storage.ErrNotFound.
func (q *Queue) AddPromptToQueue(ctx context.Context, questionID uuid.UUID) (model.Prompt, error) {
	var picked model.Prompt
	err := q.store.InTx(ctx, func(tx storage.Tx) error {
		p, err := tx.PickCatchupPrompt(ctx, questionID)
		if err != nil {
			return err
		}
		picked = p
		return nil
	})
	if err != nil {
		return model.Prompt{}, fmt.Errorf("pick catchup prompt: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.listKey(questionID), picked.ID.String())
	pipe.Expire(ctx, q.listKey(questionID), q.ttl)
	pipe.Del(ctx, q.refillKey(questionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Prompt{}, fmt.Errorf("push catchup prompt: %w", err)
	}

	q.logger.Info().
		Str("question_id", questionID.String()).
		Str("prompt_id", picked.ID.String()).
		Int("votes", picked.VotesCount).
		Msg("catchup prompt queued")
	return picked, nil
}

// Pop takes the next queued prompt id for a question.
func (q *Queue) Pop(ctx context.Context, questionID uuid.UUID) (uuid.UUID, error) {
	raw, err := q.client.LPop(ctx, q.listKey(questionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrQueueEmpty
		}
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queued prompt id %q: %w", raw, err)
	}
	return id, nil
}

// Len returns the number of queued prompts for a question.
func (q *Queue) Len(ctx context.Context, questionID uuid.UUID) (int64, error) {
	return q.client.LLen(ctx, q.listKey(questionID)).Result()
}
