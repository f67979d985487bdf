// Package tasks is the deferred work layer: keyed, at-least-once tasks stored
// in Redis and executed by a worker pool with retry and dead-lettering.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the handler a task is routed to.
type Kind string

const (
	KindGeneratePrompts  Kind = "generate_prompts"
	KindAddPromptToQueue Kind = "add_prompt_to_queue"
)

// Task is one unit of deferred work. Tasks with the same Key are the same
// logical job; redelivery and duplicate enqueues collapse onto it.
type Task struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	QuestionID uuid.UUID `json:"question_id"`
	ChoiceID   uuid.UUID `json:"choice_id"`
	Epoch      int       `json:"epoch"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// NewTask builds a task for a choice at the given epoch (its version).
func NewTask(kind Kind, questionID, choiceID uuid.UUID, epoch int) Task {
	return Task{
		ID:         uuid.New(),
		Kind:       kind,
		QuestionID: questionID,
		ChoiceID:   choiceID,
		Epoch:      epoch,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Key is the idempotency key of the task.
func (t Task) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d", t.Kind, t.QuestionID, t.ChoiceID, t.Epoch)
}

// Enqueuer schedules tasks for later execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
