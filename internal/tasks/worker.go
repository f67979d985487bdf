package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/pairwise/internal/metrics"
)

// Broker is the queue surface the worker consumes.
type Broker interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	DeadLetter(ctx context.Context, d *Delivery, cause error) error
	Seen(ctx context.Context, t Task) (bool, error)
	MarkDone(ctx context.Context, t Task) error
}

// HandlerFunc executes one task.
type HandlerFunc func(ctx context.Context, t Task) error

// WorkerOptions tunes concurrency and retry.
type WorkerOptions struct {
	Concurrency    int
	MaxAttempts    int
	BaseBackoff    time.Duration
	DequeueTimeout time.Duration
	TaskTimeout    time.Duration
}

// Worker drains a Broker with a fixed pool of goroutines.
type Worker struct {
	broker   Broker
	handlers map[Kind]HandlerFunc
	opts     WorkerOptions
	logger   zerolog.Logger
}

// NewWorker constructs a worker; handlers are attached with Handle.
func NewWorker(broker Broker, opts WorkerOptions, logger zerolog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = 2 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	return &Worker{
		broker:   broker,
		handlers: make(map[Kind]HandlerFunc),
		opts:     opts,
		logger:   logger.With().Str("component", "task_worker").Logger(),
	}
}

// Handle routes tasks of kind to h.
func (w *Worker) Handle(kind Kind, h HandlerFunc) {
	w.handlers[kind] = h
}

// Run blocks until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error { return w.loop(gctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := w.broker.Dequeue(ctx, w.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.BaseBackoff):
			}
			continue
		}
		if d == nil {
			continue
		}
		w.process(ctx, d)
	}
}

func (w *Worker) process(ctx context.Context, d *Delivery) {
	t := d.Task
	log := w.logger.With().
		Str("task_id", t.ID.String()).
		Str("kind", string(t.Kind)).
		Str("key", t.Key()).
		Logger()

	done, err := w.broker.Seen(ctx, t)
	if err != nil {
		log.Warn().Err(err).Msg("ledger check failed; running task anyway")
	}
	if done {
		if err := w.broker.Ack(ctx, d); err != nil {
			log.Warn().Err(err).Msg("ack failed")
		}
		metrics.TasksProcessed.WithLabelValues(string(t.Kind), "duplicate").Inc()
		return
	}

	handler, ok := w.handlers[t.Kind]
	if !ok {
		w.deadLetter(ctx, d, fmt.Errorf("no handler for task kind %q", t.Kind), log)
		return
	}

	backoff := retry.WithMaxRetries(uint64(w.opts.MaxAttempts-1), retry.NewExponential(w.opts.BaseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		d.Task.Attempts++
		tctx, cancel := context.WithTimeout(ctx, w.opts.TaskTimeout)
		defer cancel()

		herr := handler(tctx, d.Task)
		if herr == nil || IsPermanent(herr) {
			return herr
		}
		log.Warn().Err(herr).Int("attempt", d.Task.Attempts).Msg("task failed; retrying")
		return retry.RetryableError(herr)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// left in the processing list; Recover hands it out on restart
			return
		}
		w.deadLetter(ctx, d, err, log)
		return
	}

	if err := w.broker.MarkDone(ctx, t); err != nil {
		log.Warn().Err(err).Msg("record completion failed")
	}
	if err := w.broker.Ack(ctx, d); err != nil {
		log.Warn().Err(err).Msg("ack failed")
	}
	metrics.TasksProcessed.WithLabelValues(string(t.Kind), "ok").Inc()
	log.Debug().Int("attempts", d.Task.Attempts).Msg("task done")
}

func (w *Worker) deadLetter(ctx context.Context, d *Delivery, cause error, log zerolog.Logger) {
	if err := w.broker.DeadLetter(ctx, d, cause); err != nil {
		log.Error().Err(err).Msg("dead-letter failed")
	}
	metrics.TasksProcessed.WithLabelValues(string(d.Task.Kind), "dead").Inc()
	log.Error().Err(cause).Int("attempts", d.Task.Attempts).Msg("task dead-lettered")
}
