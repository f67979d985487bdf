package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// ComputeScore returns the Laplace-smoothed win rate of a choice as a
// percentage: (wins+1)/(wins+losses+2)*100. A choice with no votes scores 50.
func ComputeScore(wins, losses int) float64 {
	return float64(wins+1) / float64(wins+losses+2) * 100
}

// ComputeAggregatePairwiseScore averages p_i/(p_i+p_j) over every other
// choice j in probs, where p_i is the probability of choiceID. The map must
// hold at least two entries including choiceID.
func ComputeAggregatePairwiseScore(choiceID uuid.UUID, probs map[uuid.UUID]float64) (float64, error) {
	if len(probs) < 2 {
		return 0, &model.InputError{Reason: fmt.Sprintf("need at least 2 probabilities, got %d", len(probs))}
	}
	pi, ok := probs[choiceID]
	if !ok {
		return 0, &model.InputError{Reason: "no probability for choice " + choiceID.String()}
	}
	if invalidProbability(pi) {
		return 0, &model.InputError{Reason: "invalid probability for choice " + choiceID.String()}
	}

	var total float64
	for id, pj := range probs {
		if id == choiceID {
			continue
		}
		if invalidProbability(pj) {
			return 0, &model.InputError{Reason: "invalid probability for choice " + id.String()}
		}
		if pi+pj == 0 {
			// two zero-probability choices are indistinguishable
			total += 0.5
			continue
		}
		total += pi / (pi + pj)
	}
	return total / float64(len(probs)-1), nil
}

func invalidProbability(p float64) bool {
	return p < 0 || math.IsNaN(p) || math.IsInf(p, 0)
}

// ProbabilitySource supplies externally modelled Bradley–Terry win
// probabilities for every choice of a question.
type ProbabilitySource interface {
	BradleyTerryProbabilities(ctx context.Context, questionID uuid.UUID) (map[uuid.UUID]float64, error)
}

// Ranking receives every freshly persisted score.
type Ranking interface {
	RecordScore(ctx context.Context, c model.Choice, score float64) error
}

// Engine persists and aggregates choice scores.
type Engine struct {
	store   storage.Store
	probs   ProbabilitySource
	ranking Ranking
	logger  zerolog.Logger
}

// EngineOption tunes an Engine.
type EngineOption func(*Engine)

// WithRanking forwards persisted scores to r. Failures are logged only.
func WithRanking(r Ranking) EngineOption {
	return func(e *Engine) { e.ranking = r }
}

// NewEngine creates a scoring engine. probs may be nil when no statistical
// model is deployed; AggregateScoreForChoice then fails.
func NewEngine(store storage.Store, probs ProbabilitySource, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		probs:  probs,
		logger: logger.With().Str("component", "scoring").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeAndPersistScore recomputes the fast-path score from the stored
// win/loss tally and writes it back.
func (e *Engine) ComputeAndPersistScore(ctx context.Context, choiceID uuid.UUID) (float64, error) {
	var (
		score  float64
		choice model.Choice
	)
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetChoice(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		choice = c
		score = ComputeScore(c.Wins, c.Losses)
		if err := tx.UpdateChoiceScore(ctx, c.ID, score); err != nil {
			return &model.PersistenceError{Op: "persist score", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.Debug().
		Str("choice_id", choiceID.String()).
		Float64("score", score).
		Msg("score persisted")

	if e.ranking != nil {
		if err := e.ranking.RecordScore(ctx, choice, score); err != nil {
			e.logger.Warn().Err(err).Str("choice_id", choiceID.String()).Msg("failed to update ranking")
		}
	}
	return score, nil
}

// AggregateScoreForChoice computes the aggregate pairwise score of a choice
// using the probabilities of its question. It never writes the result.
func (e *Engine) AggregateScoreForChoice(ctx context.Context, choiceID uuid.UUID) (float64, error) {
	if e.probs == nil {
		return 0, errors.New("no probability source configured")
	}
	var questionID uuid.UUID
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetChoice(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		questionID = c.QuestionID
		return nil
	})
	if err != nil {
		return 0, err
	}

	probs, err := e.probs.BradleyTerryProbabilities(ctx, questionID)
	if err != nil {
		return 0, fmt.Errorf("fetch probabilities: %w", err)
	}
	return ComputeAggregatePairwiseScore(choiceID, probs)
}
