package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeInvalidChoiceID  = "invalid_choice_id"
	ErrCodeInvalidQuestion  = "invalid_question_id"

	// Resource errors
	ErrCodeNotFound         = "not_found"
	ErrCodeChoiceNotFound   = "choice_not_found"
	ErrCodeQuestionNotFound = "question_not_found"

	// Scoring errors
	ErrCodeInvalidScoringInput = "invalid_scoring_input"
	ErrCodeScoringUnavailable  = "scoring_unavailable"

	// Queue errors
	ErrCodeEnqueueFailed = "enqueue_failed"
	ErrCodeQueueEmpty    = "queue_empty"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodePersistenceFailed  = "persistence_failed"
	ErrCodeServiceUnavailable = "service_unavailable"
)
