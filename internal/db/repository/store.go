package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/pairwise/internal/storage"
)

// StoreOptions tunes transaction retry on serialization conflicts.
type StoreOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore constructs the Postgres store.
func NewStore(pool *pgxpool.Pool, opts StoreOptions, logger zerolog.Logger) *Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 20 * time.Millisecond
	}
	return &Store{
		pool:       pool,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		logger:     logger.With().Str("component", "pg_store").Logger(),
	}
}

// InTx runs fn in a transaction, committing when it returns nil. The whole
// callback is replayed when Postgres aborts it with a serialization failure
// or deadlock, so fn must not keep state across calls.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.WithJitterPercent(50, retry.NewExponential(s.baseDelay)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if isRetriable(err) {
			s.logger.Debug().Err(err).Msg("transaction conflict; retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isRetriable returns true for Postgres error codes that indicate a transient conflict.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	default:
		return false
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
