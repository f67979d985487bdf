package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
)

// querier is the subset of pgx.Tx the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type pgTx struct {
	q querier
}

var _ storage.Tx = (*pgTx)(nil)

const questionColumns = `id, creator_id, name, choices_count, inactive_choices_count, prompts_count,
	uses_catchup, autoactivate_ideas, created_at, updated_at`

const choiceColumns = `id, question_id, creator_id, data, active, score, wins, losses,
	prompts_on_the_left_count, prompts_on_the_right_count, version, created_at, updated_at`

func scanQuestion(row pgx.Row) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.CreatorID, &q.Name, &q.ChoicesCount, &q.InactiveChoicesCount, &q.PromptsCount,
		&q.UsesCatchup, &q.AutoactivateIdeas, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func scanChoice(row pgx.Row) (model.Choice, error) {
	var c model.Choice
	err := row.Scan(&c.ID, &c.QuestionID, &c.CreatorID, &c.Data, &c.Active, &c.Score, &c.Wins, &c.Losses,
		&c.PromptsOnTheLeftCount, &c.PromptsOnTheRightCount, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (t *pgTx) GetQuestion(ctx context.Context, id uuid.UUID) (model.Question, error) {
	q, err := scanQuestion(t.q.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		return model.Question{}, notFound(err)
	}
	return q, nil
}

func (t *pgTx) LockQuestion(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	if err := t.q.QueryRow(ctx, `SELECT id FROM questions WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return notFound(err)
	}
	return nil
}

func (t *pgTx) GetChoice(ctx context.Context, id uuid.UUID) (model.Choice, error) {
	c, err := scanChoice(t.q.QueryRow(ctx, `SELECT `+choiceColumns+` FROM choices WHERE id = $1`, id))
	if err != nil {
		return model.Choice{}, notFound(err)
	}
	return c, nil
}

func (t *pgTx) GetChoiceForUpdate(ctx context.Context, id uuid.UUID) (model.Choice, error) {
	c, err := scanChoice(t.q.QueryRow(ctx, `SELECT `+choiceColumns+` FROM choices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Choice{}, notFound(err)
	}
	return c, nil
}

func (t *pgTx) InsertChoice(ctx context.Context, c *model.Choice) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO choices (id, question_id, creator_id, data, active, score)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version, created_at, updated_at`,
		c.ID, c.QuestionID, c.CreatorID, c.Data, c.Active, c.Score,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert choice: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateChoice(ctx context.Context, c *model.Choice) error {
	updated, err := scanChoice(t.q.QueryRow(ctx, `
		UPDATE choices
		SET question_id = $2, data = $3, active = $4, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+choiceColumns,
		c.ID, c.QuestionID, c.Data, c.Active,
	))
	if err != nil {
		return notFound(err)
	}
	*c = updated
	return nil
}

func (t *pgTx) UpdateChoiceScore(ctx context.Context, id uuid.UUID, score float64) error {
	tag, err := t.q.Exec(ctx, `UPDATE choices SET score = $2, updated_at = now() WHERE id = $1`, id, score)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func choiceFilterClause(filter storage.ChoiceFilter) string {
	switch filter {
	case storage.ActiveChoices:
		return ` AND active`
	case storage.InactiveChoices:
		return ` AND NOT active`
	default:
		return ``
	}
}

func (t *pgTx) CountChoices(ctx context.Context, questionID uuid.UUID, filter storage.ChoiceFilter) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT count(*) FROM choices WHERE question_id = $1`+choiceFilterClause(filter), questionID).Scan(&n)
	return n, err
}

func (t *pgTx) ListChoices(ctx context.Context, questionID uuid.UUID, filter storage.ChoiceFilter) ([]model.Choice, error) {
	rows, err := t.q.Query(ctx, `SELECT `+choiceColumns+` FROM choices WHERE question_id = $1`+
		choiceFilterClause(filter)+` ORDER BY created_at, id`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Choice
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// counterColumn maps a counter to its quoted column name. Only known
// counters reach SQL.
func counterColumn(field model.CounterField) (string, error) {
	if !field.Valid() {
		return "", fmt.Errorf("unknown counter %q", field)
	}
	return pgx.Identifier{string(field)}.Sanitize(), nil
}

func (t *pgTx) IncrementCounter(ctx context.Context, questionID uuid.UUID, field model.CounterField, delta int) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE questions SET `+col+` = `+col+` + $2, updated_at = now() WHERE id = $1`, questionID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetCounter(ctx context.Context, questionID uuid.UUID, field model.CounterField, value int) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE questions SET `+col+` = $2, updated_at = now() WHERE id = $1`, questionID, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListPromptPairs(ctx context.Context, questionID, choiceID uuid.UUID) ([]model.Pair, error) {
	rows, err := t.q.Query(ctx, `
		SELECT left_choice_id, right_choice_id FROM prompts
		WHERE question_id = $1 AND (left_choice_id = $2 OR right_choice_id = $2)`,
		questionID, choiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Pair
	for rows.Next() {
		var p model.Pair
		if err := rows.Scan(&p.Left, &p.Right); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertPrompts(ctx context.Context, prompts []model.Prompt) (int, error) {
	if len(prompts) == 0 {
		return 0, nil
	}
	n, err := t.q.CopyFrom(ctx,
		pgx.Identifier{"prompts"},
		[]string{"id", "question_id", "left_choice_id", "right_choice_id", "votes_count", "created_at"},
		pgx.CopyFromSlice(len(prompts), func(i int) ([]any, error) {
			p := prompts[i]
			return []any{p.ID, p.QuestionID, p.LeftChoiceID, p.RightChoiceID, p.VotesCount, p.CreatedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy prompts: %w", err)
	}
	return int(n), nil
}

func (t *pgTx) PickCatchupPrompt(ctx context.Context, questionID uuid.UUID) (model.Prompt, error) {
	var p model.Prompt
	err := t.q.QueryRow(ctx, `
		SELECT p.id, p.question_id, p.left_choice_id, p.right_choice_id, p.votes_count, p.created_at
		FROM prompts p
		JOIN choices l ON l.id = p.left_choice_id
		JOIN choices r ON r.id = p.right_choice_id
		WHERE p.question_id = $1 AND l.active AND r.active
		ORDER BY p.votes_count, p.created_at, p.id
		LIMIT 1`, questionID,
	).Scan(&p.ID, &p.QuestionID, &p.LeftChoiceID, &p.RightChoiceID, &p.VotesCount, &p.CreatedAt)
	if err != nil {
		return model.Prompt{}, notFound(err)
	}
	return p, nil
}
