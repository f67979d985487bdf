package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultScore is the rank score of a choice with no recorded votes.
const DefaultScore = 50.0

// CounterField names a denormalized counter column on a question.
type CounterField string

// Question counter caches.
const (
	CounterChoices         CounterField = "choices_count"
	CounterInactiveChoices CounterField = "inactive_choices_count"
	CounterPrompts         CounterField = "prompts_count"
)

// Valid reports whether f is one of the known question counters.
func (f CounterField) Valid() bool {
	switch f {
	case CounterChoices, CounterInactiveChoices, CounterPrompts:
		return true
	default:
		return false
	}
}

// Question groups choices and the prompts generated between them.
type Question struct {
	ID                   uuid.UUID `json:"id"`
	CreatorID            uuid.UUID `json:"creator_id"`
	Name                 string    `json:"name"`
	ChoicesCount         int       `json:"choices_count"`
	InactiveChoicesCount int       `json:"inactive_choices_count"`
	PromptsCount         int       `json:"prompts_count"`
	UsesCatchup          bool      `json:"uses_catchup"`
	AutoactivateIdeas    bool      `json:"autoactivate_ideas"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ShouldAutoactivateIdeas decides the initial state of choices created without
// an explicit active flag.
func (q Question) ShouldAutoactivateIdeas() bool {
	return q.AutoactivateIdeas
}

// UsesCatchupEnabled reports whether deficit-driven prompt backfill is on.
func (q Question) UsesCatchupEnabled() bool {
	return q.UsesCatchup
}

// ActiveChoicesCount is the net number of active choices according to the
// counter caches.
func (q Question) ActiveChoicesCount() int {
	return q.ChoicesCount - q.InactiveChoicesCount
}

// Choice is a candidate option under a question.
type Choice struct {
	ID                     uuid.UUID `json:"id"`
	QuestionID             uuid.UUID `json:"question_id"`
	CreatorID              uuid.UUID `json:"creator_id"`
	Data                   string    `json:"data"`
	Active                 bool      `json:"active"`
	Score                  float64   `json:"score"`
	Wins                   int       `json:"wins"`
	Losses                 int       `json:"losses"`
	PromptsOnTheLeftCount  int       `json:"prompts_on_the_left_count"`
	PromptsOnTheRightCount int       `json:"prompts_on_the_right_count"`
	Version                int       `json:"version"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// HasHistory reports whether the choice has taken part in any vote.
func (c Choice) HasHistory() bool {
	return c.Wins+c.Losses > 0
}

// UserCreated reports whether the choice was submitted by someone other than
// the question's creator.
func (c Choice) UserCreated(q Question) bool {
	return c.CreatorID != q.CreatorID
}

// Prompt is one ordered pair of choices offered for comparison.
type Prompt struct {
	ID            uuid.UUID `json:"id"`
	QuestionID    uuid.UUID `json:"question_id"`
	LeftChoiceID  uuid.UUID `json:"left_choice_id"`
	RightChoiceID uuid.UUID `json:"right_choice_id"`
	VotesCount    int       `json:"votes_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pair is the (left, right) identity of a prompt.
type Pair struct {
	Left  uuid.UUID
	Right uuid.UUID
}

// Pair returns the ordered identity of the prompt.
func (p Prompt) Pair() Pair {
	return Pair{Left: p.LeftChoiceID, Right: p.RightChoiceID}
}

// QuestionStats is the counter snapshot published after a mutation.
type QuestionStats struct {
	QuestionID           uuid.UUID `json:"question_id"`
	ChoicesCount         int       `json:"choices_count"`
	InactiveChoicesCount int       `json:"inactive_choices_count"`
	PromptsCount         int       `json:"prompts_count"`
}

// Stats extracts the counter snapshot of q.
func (q Question) Stats() QuestionStats {
	return QuestionStats{
		QuestionID:           q.ID,
		ChoicesCount:         q.ChoicesCount,
		InactiveChoicesCount: q.InactiveChoicesCount,
		PromptsCount:         q.PromptsCount,
	}
}
