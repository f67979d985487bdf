package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/counter"
	"github.com/gokatarajesh/pairwise/internal/metrics"
	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// Pairs returns the ordered pairs a subject forms with each counterpart:
// one with the subject on the left and one with it on the right.
func Pairs(subject uuid.UUID, counterparts []uuid.UUID) []model.Pair {
	pairs := make([]model.Pair, 0, 2*len(counterparts))
	for _, c := range counterparts {
		if c == subject {
			continue
		}
		pairs = append(pairs, model.Pair{Left: subject, Right: c}, model.Pair{Left: c, Right: subject})
	}
	return pairs
}

// Generator materializes the prompts of a newly eligible choice.
type Generator struct {
	store    storage.Store
	counters *counter.Sync
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGenerator constructs a pair generator.
func NewGenerator(store storage.Store, counters *counter.Sync, logger zerolog.Logger) *Generator {
	return &Generator{
		store:    store,
		counters: counters,
		logger:   logger.With().Str("component", "prompt_generator").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate pairs the choice with every other choice of its question and
// inserts the missing prompts in one batch, bumping prompts_count by the
// number of rows written. It returns that number. Re-running it after a
// successful run writes nothing.
func (g *Generator) Generate(ctx context.Context, choiceID uuid.UUID) (int, error) {
	var (
		subject  model.Choice
		inserted int
	)
	err := g.store.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetChoice(ctx, choiceID)
		if err != nil {
			return fmt.Errorf("load choice: %w", err)
		}
		subject = c

		others, err := tx.ListChoices(ctx, c.QuestionID, storage.AllChoices)
		if err != nil {
			return fmt.Errorf("list choices: %w", err)
		}
		counterparts := make([]uuid.UUID, 0, len(others))
		for _, o := range others {
			if o.ID != c.ID {
				counterparts = append(counterparts, o.ID)
			}
		}
		if len(counterparts) == 0 {
			return nil
		}

		existing, err := tx.ListPromptPairs(ctx, c.QuestionID, c.ID)
		if err != nil {
			return fmt.Errorf("list existing prompts: %w", err)
		}
		present := make(map[model.Pair]struct{}, len(existing))
		for _, p := range existing {
			present[p] = struct{}{}
		}

		now := g.now()
		var batch []model.Prompt
		for _, pair := range Pairs(c.ID, counterparts) {
			if _, ok := present[pair]; ok {
				continue
			}
			batch = append(batch, model.Prompt{
				ID:            uuid.New(),
				QuestionID:    c.QuestionID,
				LeftChoiceID:  pair.Left,
				RightChoiceID: pair.Right,
				CreatedAt:     now,
			})
		}
		if len(batch) == 0 {
			return nil
		}

		n, err := tx.InsertPrompts(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert prompts: %w", err)
		}
		if n != len(batch) {
			return fmt.Errorf("insert prompts: wrote %d of %d rows", n, len(batch))
		}
		if err := g.counters.AdjustCounter(ctx, tx, c.QuestionID, model.CounterPrompts, n); err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, &model.GenerationError{QuestionID: subject.QuestionID, ChoiceID: choiceID, Err: err}
	}

	if inserted > 0 {
		metrics.PromptsGenerated.Add(float64(inserted))
		metrics.GenerationFanout.Observe(float64(inserted))
	}
	g.logger.Info().
		Str("question_id", subject.QuestionID.String()).
		Str("choice_id", choiceID.String()).
		Int("prompts", inserted).
		Msg("prompts generated")
	return inserted, nil
}
