// Package testutil provides an in-memory storage.Store for unit tests.
//
// Transactions are serialized behind one mutex and run against a copy of the
// data, which is swapped in only when the callback returns nil. That gives the
// same all-or-nothing behaviour the Postgres store provides.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

type memState struct {
	questions map[uuid.UUID]model.Question
	choices   map[uuid.UUID]model.Choice
	prompts   map[uuid.UUID]model.Prompt
}

func (s memState) clone() memState {
	out := memState{
		questions: make(map[uuid.UUID]model.Question, len(s.questions)),
		choices:   make(map[uuid.UUID]model.Choice, len(s.choices)),
		prompts:   make(map[uuid.UUID]model.Prompt, len(s.prompts)),
	}
	for k, v := range s.questions {
		out.questions[k] = v
	}
	for k, v := range s.choices {
		out.choices[k] = v
	}
	for k, v := range s.prompts {
		out.prompts[k] = v
	}
	return out
}

// MemStore implements storage.Store in memory.
type MemStore struct {
	mu       sync.Mutex
	state    memState
	failures map[string]error
	seq      int64
}

var _ storage.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		state: memState{
			questions: map[uuid.UUID]model.Question{},
			choices:   map[uuid.UUID]model.Choice{},
			prompts:   map[uuid.UUID]model.Prompt{},
		},
		failures: map[string]error{},
	}
}

// InTx runs fn against a private copy and publishes it on success.
func (m *MemStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// FailNext makes the next call to the named Tx method return err.
func (m *MemStore) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// AddQuestion seeds a question row.
func (m *MemStore) AddQuestion(q model.Question) model.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatorID == uuid.Nil {
		q.CreatorID = uuid.New()
	}
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now
	m.state.questions[q.ID] = q
	return q
}

// Question returns the committed question row.
func (m *MemStore) Question(id uuid.UUID) model.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.questions[id]
}

// Choice returns the committed choice row.
func (m *MemStore) Choice(id uuid.UUID) model.Choice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.choices[id]
}

// RecordVotes plays the external vote recorder: it sets wins and losses.
func (m *MemStore) RecordVotes(choiceID uuid.UUID, wins, losses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state.choices[choiceID]
	c.Wins, c.Losses = wins, losses
	m.state.choices[choiceID] = c
}

// SetPromptVotes overwrites the vote count of a prompt.
func (m *MemStore) SetPromptVotes(promptID uuid.UUID, votes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.prompts[promptID]
	p.VotesCount = votes
	m.state.prompts[promptID] = p
}

// Prompts returns the committed prompts of a question.
func (m *MemStore) Prompts(questionID uuid.UUID) []model.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Prompt
	for _, p := range m.state.prompts {
		if p.QuestionID == questionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TrueCounts counts choice rows of a question directly.
func (m *MemStore) TrueCounts(questionID uuid.UUID) (total, inactive int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.state.choices {
		if c.QuestionID != questionID {
			continue
		}
		total++
		if !c.Active {
			inactive++
		}
	}
	return total, inactive
}

type memTx struct {
	store *MemStore
	state memState
}

func (t *memTx) fail(method string) error {
	if err, ok := t.store.failures[method]; ok {
		delete(t.store.failures, method)
		return err
	}
	return nil
}

func (t *memTx) now() time.Time {
	t.store.seq++
	return time.Unix(0, 0).UTC().Add(time.Duration(t.store.seq) * time.Millisecond)
}

func (t *memTx) GetQuestion(_ context.Context, id uuid.UUID) (model.Question, error) {
	if err := t.fail("GetQuestion"); err != nil {
		return model.Question{}, err
	}
	q, ok := t.state.questions[id]
	if !ok {
		return model.Question{}, storage.ErrNotFound
	}
	return q, nil
}

func (t *memTx) LockQuestion(_ context.Context, id uuid.UUID) error {
	if err := t.fail("LockQuestion"); err != nil {
		return err
	}
	if _, ok := t.state.questions[id]; !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (t *memTx) GetChoice(_ context.Context, id uuid.UUID) (model.Choice, error) {
	if err := t.fail("GetChoice"); err != nil {
		return model.Choice{}, err
	}
	c, ok := t.state.choices[id]
	if !ok {
		return model.Choice{}, storage.ErrNotFound
	}
	return c, nil
}

// GetChoiceForUpdate is GetChoice: InTx already runs one transaction at a time.
func (t *memTx) GetChoiceForUpdate(ctx context.Context, id uuid.UUID) (model.Choice, error) {
	if err := t.fail("GetChoiceForUpdate"); err != nil {
		return model.Choice{}, err
	}
	return t.GetChoice(ctx, id)
}

func (t *memTx) InsertChoice(_ context.Context, c *model.Choice) error {
	if err := t.fail("InsertChoice"); err != nil {
		return err
	}
	if _, ok := t.state.questions[c.QuestionID]; !ok {
		return fmt.Errorf("insert choice: question %s: %w", c.QuestionID, storage.ErrNotFound)
	}
	now := t.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.Version = 1
	t.state.choices[c.ID] = *c
	return nil
}

func (t *memTx) UpdateChoice(_ context.Context, c *model.Choice) error {
	if err := t.fail("UpdateChoice"); err != nil {
		return err
	}
	stored, ok := t.state.choices[c.ID]
	if !ok {
		return storage.ErrNotFound
	}
	stored.QuestionID = c.QuestionID
	stored.Data = c.Data
	stored.Active = c.Active
	stored.Version++
	stored.UpdatedAt = t.now()
	t.state.choices[c.ID] = stored
	*c = stored
	return nil
}

func (t *memTx) UpdateChoiceScore(_ context.Context, id uuid.UUID, score float64) error {
	if err := t.fail("UpdateChoiceScore"); err != nil {
		return err
	}
	stored, ok := t.state.choices[id]
	if !ok {
		return storage.ErrNotFound
	}
	stored.Score = score
	t.state.choices[id] = stored
	return nil
}

func (t *memTx) CountChoices(ctx context.Context, questionID uuid.UUID, filter storage.ChoiceFilter) (int, error) {
	if err := t.fail("CountChoices"); err != nil {
		return 0, err
	}
	choices, err := t.ListChoices(ctx, questionID, filter)
	return len(choices), err
}

func (t *memTx) ListChoices(_ context.Context, questionID uuid.UUID, filter storage.ChoiceFilter) ([]model.Choice, error) {
	if err := t.fail("ListChoices"); err != nil {
		return nil, err
	}
	var out []model.Choice
	for _, c := range t.state.choices {
		if c.QuestionID != questionID {
			continue
		}
		switch filter {
		case storage.ActiveChoices:
			if !c.Active {
				continue
			}
		case storage.InactiveChoices:
			if c.Active {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) IncrementCounter(_ context.Context, questionID uuid.UUID, field model.CounterField, delta int) error {
	if err := t.fail("IncrementCounter"); err != nil {
		return err
	}
	q, ok := t.state.questions[questionID]
	if !ok {
		return storage.ErrNotFound
	}
	switch field {
	case model.CounterChoices:
		q.ChoicesCount += delta
	case model.CounterInactiveChoices:
		q.InactiveChoicesCount += delta
	case model.CounterPrompts:
		q.PromptsCount += delta
	default:
		return fmt.Errorf("unknown counter %q", field)
	}
	t.state.questions[questionID] = q
	return nil
}

func (t *memTx) SetCounter(_ context.Context, questionID uuid.UUID, field model.CounterField, value int) error {
	if err := t.fail("SetCounter"); err != nil {
		return err
	}
	q, ok := t.state.questions[questionID]
	if !ok {
		return storage.ErrNotFound
	}
	switch field {
	case model.CounterChoices:
		q.ChoicesCount = value
	case model.CounterInactiveChoices:
		q.InactiveChoicesCount = value
	case model.CounterPrompts:
		q.PromptsCount = value
	default:
		return fmt.Errorf("unknown counter %q", field)
	}
	t.state.questions[questionID] = q
	return nil
}

func (t *memTx) ListPromptPairs(_ context.Context, questionID, choiceID uuid.UUID) ([]model.Pair, error) {
	if err := t.fail("ListPromptPairs"); err != nil {
		return nil, err
	}
	var out []model.Pair
	for _, p := range t.state.prompts {
		if p.QuestionID != questionID {
			continue
		}
		if p.LeftChoiceID == choiceID || p.RightChoiceID == choiceID {
			out = append(out, p.Pair())
		}
	}
	return out, nil
}

func (t *memTx) InsertPrompts(_ context.Context, prompts []model.Prompt) (int, error) {
	if err := t.fail("InsertPrompts"); err != nil {
		return 0, err
	}
	existing := map[uuid.UUID]map[model.Pair]bool{}
	for _, p := range t.state.prompts {
		if existing[p.QuestionID] == nil {
			existing[p.QuestionID] = map[model.Pair]bool{}
		}
		existing[p.QuestionID][p.Pair()] = true
	}
	for _, p := range prompts {
		if existing[p.QuestionID][p.Pair()] {
			return 0, fmt.Errorf("duplicate prompt %s -> %s", p.LeftChoiceID, p.RightChoiceID)
		}
	}
	for _, p := range prompts {
		p.CreatedAt = t.now()
		t.state.prompts[p.ID] = p
	}
	return len(prompts), nil
}

func (t *memTx) PickCatchupPrompt(_ context.Context, questionID uuid.UUID) (model.Prompt, error) {
	if err := t.fail("PickCatchupPrompt"); err != nil {
		return model.Prompt{}, err
	}
	var (
		best  model.Prompt
		found bool
	)
	for _, p := range t.state.prompts {
		if p.QuestionID != questionID {
			continue
		}
		if !t.state.choices[p.LeftChoiceID].Active || !t.state.choices[p.RightChoiceID].Active {
			continue
		}
		if !found || p.VotesCount < best.VotesCount ||
			(p.VotesCount == best.VotesCount && p.CreatedAt.Before(best.CreatedAt)) {
			best, found = p, true
		}
	}
	if !found {
		return model.Prompt{}, storage.ErrNotFound
	}
	return best, nil
}
