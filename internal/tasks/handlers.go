package tasks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// PairGenerator writes the prompts of one choice.
type PairGenerator interface {
	Generate(ctx context.Context, choiceID uuid.UUID) (int, error)
}

// PromptFiller backfills a question's catchup prompt queue.
type PromptFiller interface {
	AddPromptToQueue(ctx context.Context, questionID uuid.UUID) (model.Prompt, error)
}

// RegisterPromptHandlers attaches the generate_prompts and
// add_prompt_to_queue handlers to w.
func RegisterPromptHandlers(w *Worker, gen PairGenerator, filler PromptFiller, logger zerolog.Logger) {
	w.Handle(KindGeneratePrompts, func(ctx context.Context, t Task) error {
		_, err := gen.Generate(ctx, t.ChoiceID)
		if errors.Is(err, storage.ErrNotFound) {
			// the choice is gone; nothing left to pair
			return Permanent(err)
		}
		return err
	})

	w.Handle(KindAddPromptToQueue, func(ctx context.Context, t Task) error {
		_, err := filler.AddPromptToQueue(ctx, t.QuestionID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug().
				Str("question_id", t.QuestionID.String()).
				Msg("no eligible catchup prompt")
			return nil
		}
		return err
	})
}
