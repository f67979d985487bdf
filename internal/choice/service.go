// Package choice owns the choice lifecycle: creation, activation toggles and
// question reassignment, each applied with its counter changes in a single
// transaction and followed by the deferred prompt work it implies.
package choice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/counter"
	"github.com/gokatarajesh/pairwise/internal/metrics"
	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
	"github.com/gokatarajesh/pairwise/internal/tasks"
)

// RefillMarker flags a question's catchup prompt queue as stale.
type RefillMarker interface {
	MarkForRefill(ctx context.Context, questionID uuid.UUID) error
}

// StatsPublisher broadcasts question counters after a mutation commits.
type StatsPublisher interface {
	PublishStats(ctx context.Context, stats model.QuestionStats) error
}

// CreateRequest carries the caller-settable fields of a new choice. Score,
// wins, losses and prompt counters are not settable.
type CreateRequest struct {
	QuestionID uuid.UUID
	CreatorID  uuid.UUID
	Data       string
	// Active overrides the question's autoactivate policy when set.
	Active *bool
	// Batch skips prompt generation; the importer calls FinalizeBatch.
	Batch bool
}

type mutationOptions struct {
	batch bool
}

// MutationOption tunes Activate and Deactivate.
type MutationOption func(*mutationOptions)

// InBatch suppresses counter recomputation and deferred work. The caller
// must run FinalizeBatch for the question afterwards.
func InBatch() MutationOption {
	return func(o *mutationOptions) { o.batch = true }
}

// Service applies choice state transitions.
type Service struct {
	store     storage.Store
	counters  *counter.Sync
	refill    RefillMarker
	tasks     tasks.Enqueuer
	publisher StatsPublisher
	logger    zerolog.Logger
}

// NewService wires the lifecycle service. publisher may be nil.
func NewService(store storage.Store, counters *counter.Sync, refill RefillMarker, enqueuer tasks.Enqueuer, publisher StatsPublisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		counters:  counters,
		refill:    refill,
		tasks:     enqueuer,
		publisher: publisher,
		logger:    logger.With().Str("component", "choice_service").Logger(),
	}
}

// HasHistory reports whether the choice has taken part in a vote.
func HasHistory(c model.Choice) bool {
	return c.HasHistory()
}

// Create validates and stores a new choice, bumping the question counters in
// the same transaction. Unless req.Batch is set, prompt generation for the
// choice is enqueued once the row is committed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Choice, error) {
	if err := validateCreate(req); err != nil {
		return model.Choice{}, err
	}

	var (
		created     model.Choice
		stats       model.QuestionStats
		userCreated bool
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		q, err := tx.GetQuestion(ctx, req.QuestionID)
		if errors.Is(err, storage.ErrNotFound) {
			return &model.ValidationError{Field: "question_id", Reason: "does not exist"}
		}
		if err != nil {
			return &model.PersistenceError{Op: "load question", Err: err}
		}

		active := q.ShouldAutoactivateIdeas()
		if req.Active != nil {
			active = *req.Active
		}
		c := model.Choice{
			ID:         uuid.New(),
			QuestionID: q.ID,
			CreatorID:  req.CreatorID,
			Data:       strings.TrimSpace(req.Data),
			Active:     active,
			Score:      model.DefaultScore,
		}
		if err := tx.InsertChoice(ctx, &c); err != nil {
			return &model.PersistenceError{Op: "insert choice", Err: err}
		}

		if err := s.counters.AdjustCounter(ctx, tx, q.ID, model.CounterChoices, 1); err != nil {
			return err
		}
		if !active {
			if err := s.counters.AdjustCounter(ctx, tx, q.ID, model.CounterInactiveChoices, 1); err != nil {
				return err
			}
		}

		q, err = tx.GetQuestion(ctx, q.ID)
		if err != nil {
			return &model.PersistenceError{Op: "reload question", Err: err}
		}
		created, stats = c, q.Stats()
		userCreated = c.UserCreated(q)
		return nil
	})
	if err != nil {
		return model.Choice{}, err
	}

	metrics.ChoicesCreated.WithLabelValues(stateLabel(created.Active)).Inc()
	s.logger.Info().
		Str("choice_id", created.ID.String()).
		Str("question_id", created.QuestionID.String()).
		Bool("active", created.Active).
		Bool("batch", req.Batch).
		Bool("user_created", userCreated).
		Msg("choice created")

	if !req.Batch {
		s.enqueue(ctx, tasks.NewTask(tasks.KindGeneratePrompts, created.QuestionID, created.ID, created.Version))
	}
	s.publish(ctx, stats)
	return created, nil
}

func validateCreate(req CreateRequest) error {
	if req.CreatorID == uuid.Nil {
		return &model.ValidationError{Field: "creator_id", Reason: "is required"}
	}
	if req.QuestionID == uuid.Nil {
		return &model.ValidationError{Field: "question_id", Reason: "is required"}
	}
	if strings.TrimSpace(req.Data) == "" {
		return &model.ValidationError{Field: "data", Reason: "must not be empty"}
	}
	return nil
}

// Activate makes the choice eligible for prompts.
func (s *Service) Activate(ctx context.Context, choiceID uuid.UUID, opts ...MutationOption) (model.Choice, error) {
	return s.setActive(ctx, choiceID, true, opts)
}

// Deactivate withdraws the choice from prompts.
func (s *Service) Deactivate(ctx context.Context, choiceID uuid.UUID, opts ...MutationOption) (model.Choice, error) {
	return s.setActive(ctx, choiceID, false, opts)
}

func (s *Service) setActive(ctx context.Context, choiceID uuid.UUID, active bool, opts []MutationOption) (model.Choice, error) {
	var o mutationOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		c       model.Choice
		q       model.Question
		changed bool
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetChoiceForUpdate(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		if c.Active == active {
			return nil
		}

		c.Active = active
		if err := tx.UpdateChoice(ctx, &c); err != nil {
			return &model.PersistenceError{Op: "update choice", Err: err}
		}
		changed = true
		if o.batch {
			return nil
		}

		if _, err := s.counters.RecomputeInactiveCount(ctx, tx, c.QuestionID); err != nil {
			return err
		}
		q, err = tx.GetQuestion(ctx, c.QuestionID)
		if err != nil {
			return &model.PersistenceError{Op: "reload question", Err: err}
		}
		return nil
	})
	if err != nil {
		return model.Choice{}, err
	}
	if !changed {
		return c, nil
	}

	metrics.ActivationToggles.WithLabelValues(stateLabel(active)).Inc()
	s.logger.Info().
		Str("choice_id", c.ID.String()).
		Str("question_id", c.QuestionID.String()).
		Bool("active", active).
		Bool("batch", o.batch).
		Msg("choice activation changed")
	if o.batch {
		return c, nil
	}

	if active {
		s.markForRefill(ctx, c.QuestionID)
		if q.ActiveChoicesCount() > 1 && q.UsesCatchupEnabled() {
			s.enqueue(ctx, tasks.NewTask(tasks.KindAddPromptToQueue, c.QuestionID, c.ID, c.Version))
		}
	}
	s.publish(ctx, q.Stats())
	return c, nil
}

// Reassign moves a choice with no vote history to another question. A choice
// that has history, or is already on newQuestionID, is returned unchanged
// without error.
func (s *Service) Reassign(ctx context.Context, choiceID, newQuestionID uuid.UUID) (model.Choice, error) {
	if newQuestionID == uuid.Nil {
		return model.Choice{}, &model.ValidationError{Field: "question_id", Reason: "is required"}
	}

	var (
		c        model.Choice
		oldID    uuid.UUID
		rejected bool
		moved    bool
		stats    []model.QuestionStats
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetChoiceForUpdate(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		if c.HasHistory() {
			rejected = true
			return nil
		}
		if c.QuestionID == newQuestionID {
			return nil
		}
		if _, err := tx.GetQuestion(ctx, newQuestionID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return &model.ValidationError{Field: "question_id", Reason: "does not exist"}
			}
			return &model.PersistenceError{Op: "load question", Err: err}
		}

		oldID = c.QuestionID
		both := orderedIDs(oldID, newQuestionID)
		for _, id := range both {
			if err := tx.LockQuestion(ctx, id); err != nil {
				return &model.PersistenceError{Op: "lock question", Err: err}
			}
		}

		c.QuestionID = newQuestionID
		if err := tx.UpdateChoice(ctx, &c); err != nil {
			return &model.PersistenceError{Op: "update choice", Err: err}
		}
		if err := s.counters.AdjustCounter(ctx, tx, oldID, model.CounterChoices, -1); err != nil {
			return err
		}
		if err := s.counters.AdjustCounter(ctx, tx, newQuestionID, model.CounterChoices, 1); err != nil {
			return err
		}
		stats = stats[:0]
		for _, id := range both {
			if _, err := s.counters.RecomputeInactiveCount(ctx, tx, id); err != nil {
				return err
			}
			q, err := tx.GetQuestion(ctx, id)
			if err != nil {
				return &model.PersistenceError{Op: "reload question", Err: err}
			}
			stats = append(stats, q.Stats())
		}
		moved = true
		return nil
	})
	if err != nil {
		return model.Choice{}, err
	}

	if rejected {
		metrics.ReassignmentsRejected.Inc()
		s.logger.Debug().
			Str("choice_id", c.ID.String()).
			Str("question_id", newQuestionID.String()).
			Msg("reassignment ignored: choice has votes")
		return c, nil
	}
	if moved {
		s.logger.Info().
			Str("choice_id", c.ID.String()).
			Str("from_question_id", oldID.String()).
			Str("to_question_id", newQuestionID.String()).
			Msg("choice reassigned")
		for _, st := range stats {
			s.publish(ctx, st)
		}
	}
	return c, nil
}

// GeneratePrompts enqueues prompt generation for the choice's current
// version. Unlike the implicit enqueue on Create, failures are returned.
func (s *Service) GeneratePrompts(ctx context.Context, choiceID uuid.UUID) (tasks.Task, error) {
	var c model.Choice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetChoice(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		return nil
	})
	if err != nil {
		return tasks.Task{}, err
	}

	t := tasks.NewTask(tasks.KindGeneratePrompts, c.QuestionID, c.ID, c.Version)
	if err := s.tasks.Enqueue(ctx, t); err != nil {
		metrics.EnqueueFailures.WithLabelValues(string(t.Kind)).Inc()
		return tasks.Task{}, fmt.Errorf("enqueue prompt generation: %w", err)
	}
	return t, nil
}

// FinalizeBatch runs the side effects that batch creates and toggles skipped:
// it re-derives the inactive count, marks the prompt queue for refill and
// enqueues generation for every listed choice.
func (s *Service) FinalizeBatch(ctx context.Context, questionID uuid.UUID, choiceIDs []uuid.UUID) error {
	var (
		q       model.Question
		choices []model.Choice
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := s.counters.RecomputeInactiveCount(ctx, tx, questionID); err != nil {
			return err
		}
		var err error
		q, err = tx.GetQuestion(ctx, questionID)
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}
		choices = choices[:0]
		for _, id := range choiceIDs {
			c, err := tx.GetChoice(ctx, id)
			if err != nil {
				return fmt.Errorf("load choice %s: %w", id, err)
			}
			if c.QuestionID != questionID {
				return &model.ValidationError{Field: "choice_ids", Reason: "choice " + id.String() + " belongs to another question"}
			}
			choices = append(choices, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var errs []error
	if err := s.refill.MarkForRefill(ctx, questionID); err != nil {
		errs = append(errs, fmt.Errorf("mark prompt queue for refill: %w", err))
	}
	for _, c := range choices {
		t := tasks.NewTask(tasks.KindGeneratePrompts, questionID, c.ID, c.Version)
		if err := s.tasks.Enqueue(ctx, t); err != nil {
			metrics.EnqueueFailures.WithLabelValues(string(t.Kind)).Inc()
			errs = append(errs, fmt.Errorf("enqueue prompt generation for %s: %w", c.ID, err))
		}
	}

	s.logger.Info().
		Str("question_id", questionID.String()).
		Int("choices", len(choices)).
		Int("failures", len(errs)).
		Msg("batch finalized")
	s.publish(ctx, q.Stats())
	return errors.Join(errs...)
}

func (s *Service) enqueue(ctx context.Context, t tasks.Task) {
	if err := s.tasks.Enqueue(ctx, t); err != nil {
		metrics.EnqueueFailures.WithLabelValues(string(t.Kind)).Inc()
		s.logger.Error().Err(err).
			Str("kind", string(t.Kind)).
			Str("key", t.Key()).
			Msg("enqueue failed")
	}
}

func (s *Service) markForRefill(ctx context.Context, questionID uuid.UUID) {
	if err := s.refill.MarkForRefill(ctx, questionID); err != nil {
		s.logger.Error().Err(err).
			Str("question_id", questionID.String()).
			Msg("mark prompt queue for refill failed")
	}
}

func (s *Service) publish(ctx context.Context, stats model.QuestionStats) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStats(ctx, stats); err != nil {
		s.logger.Warn().Err(err).
			Str("question_id", stats.QuestionID.String()).
			Msg("publish question stats failed")
	}
}

// orderedIDs returns the distinct ids in a fixed order so that concurrent
// reassignments lock questions the same way.
func orderedIDs(a, b uuid.UUID) []uuid.UUID {
	ids := []uuid.UUID{a, b}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func stateLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
