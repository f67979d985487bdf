package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/metrics"
)

const (
	defaultQueuePrefix = "tasks"
	defaultLedgerTTL   = 7 * 24 * time.Hour
)

// QueueOptions configures the Redis task queue.
type QueueOptions struct {
	KeyPrefix string
	// LedgerTTL bounds how long completed and in-flight keys are remembered.
	LedgerTTL time.Duration
}

// Delivery is a task handed out by Dequeue. It must be acknowledged or
// dead-lettered; otherwise Recover hands it out again.
type Delivery struct {
	Task Task
	raw  string
}

// Queue is a reliable Redis list queue. Dequeued tasks move atomically to a
// processing list and stay there until acknowledged, so a crashed worker never
// loses work.
type Queue struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

var _ Enqueuer = (*Queue)(nil)

// NewQueue constructs the task queue.
func NewQueue(client *redis.Client, opts QueueOptions, logger zerolog.Logger) *Queue {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultQueuePrefix
	}
	if opts.LedgerTTL <= 0 {
		opts.LedgerTTL = defaultLedgerTTL
	}
	return &Queue{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.LedgerTTL,
		logger: logger.With().Str("component", "task_queue").Logger(),
	}
}

func (q *Queue) pendingKey() string    { return q.prefix + ":pending" }
func (q *Queue) processingKey() string { return q.prefix + ":processing" }
func (q *Queue) deadKey() string       { return q.prefix + ":dead" }

func (q *Queue) enqueuedKey(t Task) string { return q.prefix + ":enqueued:" + t.Key() }
func (q *Queue) doneKey(t Task) string     { return q.prefix + ":done:" + t.Key() }

// Enqueue pushes the task unless a task with the same key is already waiting
// or has completed.
func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	done, err := q.Seen(ctx, t)
	if err != nil {
		return err
	}
	if done {
		q.logger.Debug().Str("key", t.Key()).Msg("task already completed")
		return nil
	}

	fresh, err := q.client.SetNX(ctx, q.enqueuedKey(t), t.ID.String(), q.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve task key: %w", err)
	}
	if !fresh {
		q.logger.Debug().Str("key", t.Key()).Msg("task already queued")
		return nil
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		q.client.Del(ctx, q.enqueuedKey(t))
		return fmt.Errorf("push task: %w", err)
	}

	metrics.TasksEnqueued.WithLabelValues(string(t.Kind)).Inc()
	q.logger.Debug().Str("key", t.Key()).Str("task_id", t.ID.String()).Msg("task enqueued")
	return nil
}

// Dequeue blocks up to timeout for the next task. It returns nil, nil when
// the wait times out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		// unreadable payloads go straight to the dead list
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.LPush(ctx, q.deadKey(), raw)
		_, _ = pipe.Exec(ctx)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &Delivery{Task: t, raw: raw}, nil
}

// Ack removes a finished delivery from the processing list.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.raw)
	pipe.Del(ctx, q.enqueuedKey(d.Task))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// DeadLetter parks a delivery that exhausted its attempts. The task key is
// released so a later request for the same work can enqueue it again.
func (q *Queue) DeadLetter(ctx context.Context, d *Delivery, cause error) error {
	t := d.Task
	if cause != nil {
		t.LastError = cause.Error()
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.raw)
	pipe.LPush(ctx, q.deadKey(), payload)
	pipe.Del(ctx, q.enqueuedKey(t))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter task: %w", err)
	}
	return nil
}

// Seen reports whether a task with the same key already completed.
func (q *Queue) Seen(ctx context.Context, t Task) (bool, error) {
	n, err := q.client.Exists(ctx, q.doneKey(t)).Result()
	if err != nil {
		return false, fmt.Errorf("check task ledger: %w", err)
	}
	return n > 0, nil
}

// MarkDone records the task key as completed.
func (q *Queue) MarkDone(ctx context.Context, t Task) error {
	if err := q.client.Set(ctx, q.doneKey(t), t.ID.String(), q.ttl).Err(); err != nil {
		return fmt.Errorf("record task completion: %w", err)
	}
	return nil
}

// Recover moves every in-flight task back to pending. Call it once at startup,
// before workers begin dequeuing.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.pendingKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("recover tasks: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Info().Int("tasks", moved).Msg("requeued in-flight tasks")
	}
	return moved, nil
}

// Len returns the number of pending tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

// DeadLen returns the number of dead-lettered tasks.
func (q *Queue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey()).Result()
}

// Depth reports the length of the "pending" or "dead" list.
func (q *Queue) Depth(ctx context.Context, list string) (int64, error) {
	switch list {
	case "pending":
		return q.Len(ctx)
	case "dead":
		return q.DeadLen(ctx)
	default:
		return 0, fmt.Errorf("unknown task list %q", list)
	}
}
