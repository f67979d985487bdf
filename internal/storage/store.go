// Package storage declares the transactional store the ranking engine runs
// against. The Postgres implementation lives in internal/db/repository.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gokatarajesh/pairwise/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ChoiceFilter narrows choice counts and listings by activation state.
type ChoiceFilter int

const (
	AllChoices ChoiceFilter = iota
	ActiveChoices
	InactiveChoices
)

// Store runs units of work in a single transaction.
type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transaction-scoped handle handed to InTx callbacks.
type Tx interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (model.Question, error)
	// LockQuestion serializes writers touching the same question row until
	// the transaction ends.
	LockQuestion(ctx context.Context, id uuid.UUID) error

	GetChoice(ctx context.Context, id uuid.UUID) (model.Choice, error)
	// GetChoiceForUpdate reads the latest committed row and holds it until
	// the transaction ends. Writers that decide from the row must use it.
	GetChoiceForUpdate(ctx context.Context, id uuid.UUID) (model.Choice, error)
	// InsertChoice fills in timestamps and version on c.
	InsertChoice(ctx context.Context, c *model.Choice) error
	// UpdateChoice writes question, data and active state, bumps the version
	// and refreshes c with the stored values. Wins and losses are never written.
	UpdateChoice(ctx context.Context, c *model.Choice) error
	UpdateChoiceScore(ctx context.Context, id uuid.UUID, score float64) error
	CountChoices(ctx context.Context, questionID uuid.UUID, filter ChoiceFilter) (int, error)
	ListChoices(ctx context.Context, questionID uuid.UUID, filter ChoiceFilter) ([]model.Choice, error)

	// IncrementCounter applies delta in storage, never as load-then-store.
	IncrementCounter(ctx context.Context, questionID uuid.UUID, field model.CounterField, delta int) error
	SetCounter(ctx context.Context, questionID uuid.UUID, field model.CounterField, value int) error

	// ListPromptPairs returns every prompt pair of the question that involves choiceID.
	ListPromptPairs(ctx context.Context, questionID, choiceID uuid.UUID) ([]model.Pair, error)
	// InsertPrompts writes all rows as one batch and reports how many landed.
	InsertPrompts(ctx context.Context, prompts []model.Prompt) (int, error)
	// PickCatchupPrompt returns the least-voted prompt whose two choices are active.
	PickCatchupPrompt(ctx context.Context, questionID uuid.UUID) (model.Prompt, error)
}
