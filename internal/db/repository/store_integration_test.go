//go:build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/pairwise/db/migrations"
	"github.com/gokatarajesh/pairwise/internal/choice"
	"github.com/gokatarajesh/pairwise/internal/counter"
	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/prompt"
	"github.com/gokatarajesh/pairwise/internal/storage"
	"github.com/gokatarajesh/pairwise/internal/tasks"
	"github.com/gokatarajesh/pairwise/internal/testutil"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, dsn, err := testutil.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := migrate(dsn); err != nil {
		container.Terminate()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		container.Terminate()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	container.Terminate()
	os.Exit(code)
}

func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

func newTestStore() *Store {
	return NewStore(testPool, StoreOptions{}, zerolog.Nop())
}

func insertQuestion(t *testing.T, usesCatchup bool) model.Question {
	t.Helper()
	q := model.Question{ID: uuid.New(), CreatorID: uuid.New(), Name: "best snack", UsesCatchup: usesCatchup}
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO questions (id, creator_id, name, uses_catchup) VALUES ($1, $2, $3, $4)`,
		q.ID, q.CreatorID, q.Name, q.UsesCatchup)
	require.NoError(t, err)
	return q
}

func insertChoice(t *testing.T, s *Store, q model.Question, data string, active bool) model.Choice {
	t.Helper()
	c := model.Choice{ID: uuid.New(), QuestionID: q.ID, CreatorID: q.CreatorID, Data: data, Active: active, Score: model.DefaultScore}
	require.NoError(t, s.InTx(context.Background(), func(tx storage.Tx) error {
		if err := tx.InsertChoice(context.Background(), &c); err != nil {
			return err
		}
		return tx.IncrementCounter(context.Background(), q.ID, model.CounterChoices, 1)
	}))
	return c
}

func loadQuestion(t *testing.T, s *Store, id uuid.UUID) model.Question {
	t.Helper()
	var q model.Question
	require.NoError(t, s.InTx(context.Background(), func(tx storage.Tx) error {
		var err error
		q, err = tx.GetQuestion(context.Background(), id)
		return err
	}))
	return q
}

func TestChoiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	q := insertQuestion(t, true)
	c := insertChoice(t, s, q, "pretzels", false)
	assert.Equal(t, 1, c.Version)
	assert.False(t, c.CreatedAt.IsZero())

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		got, err := tx.GetChoice(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "pretzels", got.Data)

		got.Active = true
		require.NoError(t, tx.UpdateChoice(ctx, &got))
		assert.Equal(t, 2, got.Version)
		assert.True(t, got.Active)

		return tx.UpdateChoiceScore(ctx, c.ID, 61.5)
	}))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		active, err := tx.CountChoices(ctx, q.ID, storage.ActiveChoices)
		require.NoError(t, err)
		assert.Equal(t, 1, active)

		inactive, err := tx.ListChoices(ctx, q.ID, storage.InactiveChoices)
		require.NoError(t, err)
		assert.Empty(t, inactive)

		got, err := tx.GetChoice(ctx, c.ID)
		require.NoError(t, err)
		assert.InDelta(t, 61.5, got.Score, 1e-9)
		return nil
	}))
}

func TestMissingRowsMapToNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	err := s.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetChoice(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.InTx(ctx, func(tx storage.Tx) error {
		return tx.IncrementCounter(ctx, uuid.New(), model.CounterPrompts, 1)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.PickCatchupPrompt(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerateAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	counters := counter.NewSync(zerolog.Nop())
	gen := prompt.NewGenerator(s, counters, zerolog.Nop())

	q := insertQuestion(t, true)
	a := insertChoice(t, s, q, "a", true)
	insertChoice(t, s, q, "b", true)
	insertChoice(t, s, q, "c", true)

	n, err := gen.Generate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = gen.Generate(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 4, loadQuestion(t, s, q.ID).PromptsCount)
}

func TestDuplicatePromptRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	q := insertQuestion(t, true)
	a := insertChoice(t, s, q, "a", true)
	b := insertChoice(t, s, q, "b", true)

	now := time.Now().UTC()
	first := model.Prompt{ID: uuid.New(), QuestionID: q.ID, LeftChoiceID: a.ID, RightChoiceID: b.ID, CreatedAt: now}
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertPrompts(ctx, []model.Prompt{first})
		return err
	}))

	dup := first
	dup.ID = uuid.New()
	reverse := model.Prompt{ID: uuid.New(), QuestionID: q.ID, LeftChoiceID: b.ID, RightChoiceID: a.ID, CreatedAt: now}
	err := s.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertPrompts(ctx, []model.Prompt{reverse, dup})
		return err
	})
	require.Error(t, err)

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		pairs, err := tx.ListPromptPairs(ctx, q.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.Pair{first.Pair()}, pairs)
		return nil
	}))
}

func TestPickCatchupPromptSkipsInactiveChoices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	q := insertQuestion(t, true)
	a := insertChoice(t, s, q, "a", true)
	b := insertChoice(t, s, q, "b", true)
	c := insertChoice(t, s, q, "c", false)

	base := time.Now().UTC().Add(-time.Hour)
	prompts := []model.Prompt{
		{ID: uuid.New(), QuestionID: q.ID, LeftChoiceID: a.ID, RightChoiceID: c.ID, CreatedAt: base},
		{ID: uuid.New(), QuestionID: q.ID, LeftChoiceID: a.ID, RightChoiceID: b.ID, VotesCount: 3, CreatedAt: base},
		{ID: uuid.New(), QuestionID: q.ID, LeftChoiceID: b.ID, RightChoiceID: a.ID, VotesCount: 1, CreatedAt: base.Add(time.Minute)},
	}
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		n, err := tx.InsertPrompts(ctx, prompts)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	}))

	var picked model.Prompt
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		var err error
		picked, err = tx.PickCatchupPrompt(ctx, q.ID)
		return err
	}))
	assert.Equal(t, prompts[2].ID, picked.ID)
}

func TestConcurrentTogglesConverge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	counters := counter.NewSync(zerolog.Nop())
	q := insertQuestion(t, true)

	choices := make([]model.Choice, 8)
	for i := range choices {
		choices[i] = insertChoice(t, s, q, fmt.Sprintf("choice-%d", i), true)
	}

	var wg sync.WaitGroup
	for i, c := range choices {
		if i%2 == 0 {
			continue
		}
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			err := s.InTx(ctx, func(tx storage.Tx) error {
				if err := tx.LockQuestion(ctx, q.ID); err != nil {
					return err
				}
				c, err := tx.GetChoice(ctx, id)
				if err != nil {
					return err
				}
				c.Active = false
				if err := tx.UpdateChoice(ctx, &c); err != nil {
					return err
				}
				_, err = counters.RecomputeInactiveCount(ctx, tx, q.ID)
				return err
			})
			assert.NoError(t, err)
		}(c.ID)
	}
	wg.Wait()

	got := loadQuestion(t, s, q.ID)
	assert.Equal(t, 8, got.ChoicesCount)
	assert.Equal(t, 4, got.InactiveChoicesCount)
	assert.Equal(t, 4, got.ActiveChoicesCount())
}

type taskRecorder struct {
	mu     sync.Mutex
	tasks  []tasks.Task
	marked []uuid.UUID
}

func (r *taskRecorder) Enqueue(_ context.Context, t tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return nil
}

func (r *taskRecorder) MarkForRefill(_ context.Context, questionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked = append(r.marked, questionID)
	return nil
}

func trueCounts(t *testing.T, questionID uuid.UUID) (total, inactive int) {
	t.Helper()
	err := testPool.QueryRow(context.Background(),
		`SELECT count(*), count(*) FILTER (WHERE NOT active) FROM choices WHERE question_id = $1`,
		questionID).Scan(&total, &inactive)
	require.NoError(t, err)
	return total, inactive
}

func TestConcurrentReassignAndActivate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	rec := &taskRecorder{}
	svc := choice.NewService(s, counter.NewSync(zerolog.Nop()), rec, rec, nil, zerolog.Nop())

	from := insertQuestion(t, true)
	to := insertQuestion(t, true)
	insertChoice(t, s, from, "anchor", true)
	insertChoice(t, s, to, "incumbent", true)
	moving := insertChoice(t, s, from, "nomad", true)
	sleeper := insertChoice(t, s, to, "sleeper", false)
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		return tx.IncrementCounter(ctx, to.ID, model.CounterInactiveChoices, 1)
	}))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Reassign(ctx, moving.ID, to.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Activate(ctx, sleeper.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range []uuid.UUID{from.ID, to.ID} {
		total, inactive := trueCounts(t, id)
		got := loadQuestion(t, s, id)
		assert.Equal(t, total, got.ChoicesCount)
		assert.Equal(t, inactive, got.InactiveChoicesCount)
	}
	assert.Equal(t, 1, loadQuestion(t, s, from.ID).ChoicesCount)
	assert.Equal(t, 3, loadQuestion(t, s, to.ID).ChoicesCount)

	var catchup int
	for _, task := range rec.tasks {
		if task.Kind == tasks.KindAddPromptToQueue {
			catchup++
		}
	}
	assert.Equal(t, 1, catchup)
	assert.Len(t, rec.marked, 1)
}
