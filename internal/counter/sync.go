// Package counter keeps the question counter caches in step with the rows
// they summarize. Nothing else writes choices_count, inactive_choices_count or
// prompts_count.
package counter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/metrics"
	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// Sync applies counter changes inside the caller's transaction.
type Sync struct {
	logger zerolog.Logger
}

// NewSync constructs a counter synchronizer.
func NewSync(logger zerolog.Logger) *Sync {
	return &Sync{logger: logger.With().Str("component", "counter_sync").Logger()}
}

// AdjustCounter shifts a counter by delta as a storage-side increment.
// Appending events (choice creation, prompt generation) use this path.
func (s *Sync) AdjustCounter(ctx context.Context, tx storage.Tx, questionID uuid.UUID, field model.CounterField, delta int) error {
	if !field.Valid() {
		return fmt.Errorf("adjust counter: unknown field %q", field)
	}
	if delta == 0 {
		return nil
	}
	if err := tx.IncrementCounter(ctx, questionID, field, delta); err != nil {
		return &model.PersistenceError{Op: "adjust " + string(field), Err: err}
	}
	return nil
}

// RecomputeInactiveCount re-derives inactive_choices_count from the choice
// rows. The question row is locked first so concurrent toggles on the same
// question settle on the true count whatever order they commit in.
func (s *Sync) RecomputeInactiveCount(ctx context.Context, tx storage.Tx, questionID uuid.UUID) (int, error) {
	if err := tx.LockQuestion(ctx, questionID); err != nil {
		return 0, &model.PersistenceError{Op: "lock question", Err: err}
	}
	q, err := tx.GetQuestion(ctx, questionID)
	if err != nil {
		return 0, &model.PersistenceError{Op: "load question", Err: err}
	}
	inactive, err := tx.CountChoices(ctx, questionID, storage.InactiveChoices)
	if err != nil {
		return 0, &model.PersistenceError{Op: "count inactive choices", Err: err}
	}
	if err := tx.SetCounter(ctx, questionID, model.CounterInactiveChoices, inactive); err != nil {
		return 0, &model.PersistenceError{Op: "set " + string(model.CounterInactiveChoices), Err: err}
	}

	drift := "none"
	if q.InactiveChoicesCount != inactive {
		drift = "corrected"
		s.logger.Debug().
			Str("question_id", questionID.String()).
			Int("cached", q.InactiveChoicesCount).
			Int("actual", inactive).
			Msg("inactive choice count re-derived")
	}
	metrics.CounterRecomputes.WithLabelValues(drift).Inc()
	return inactive, nil
}
