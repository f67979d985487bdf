package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports a missing or invalid field on a choice mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// GenerationError reports a failed prompt batch for one choice. The batch is
// rolled back as a whole.
type GenerationError struct {
	QuestionID uuid.UUID
	ChoiceID   uuid.UUID
	Err        error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate prompts for choice %s (question %s): %v", e.ChoiceID, e.QuestionID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InputError reports an unusable argument to a scoring computation.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid scoring input: " + e.Reason
}

// PersistenceError reports a storage failure inside a transactional
// operation. The enclosing transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
