package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/pairwise/pkg/http/errors"
)

// QueueReader is the read side of the catchup queue.
type QueueReader interface {
	Len(ctx context.Context, questionID uuid.UUID) (int64, error)
	NeedsRefill(ctx context.Context, questionID uuid.UUID) (bool, error)
	Pop(ctx context.Context, questionID uuid.UUID) (uuid.UUID, error)
}

var _ QueueReader = (*Queue)(nil)

// HTTPHandler exposes a question's catchup queue.
type HTTPHandler struct {
	queue  QueueReader
	logger zerolog.Logger
}

// NewHTTPHandler constructs the prompt queue handler.
func NewHTTPHandler(queue QueueReader, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		queue:  queue,
		logger: logger.With().Str("component", "prompt_queue_http").Logger(),
	}
}

// QueueStatusResponse is the body of GET /v1/questions/{id}/prompt-queue.
type QueueStatusResponse struct {
	QuestionID  string `json:"question_id"`
	Length      int64  `json:"length"`
	NeedsRefill bool   `json:"needs_refill"`
}

// NextPromptResponse is the body of POST /v1/questions/{id}/prompt-queue/next.
type NextPromptResponse struct {
	QuestionID string `json:"question_id"`
	PromptID   string `json:"prompt_id"`
}

// Status reports how many prompts are queued and whether a refill is pending.
func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	questionID, ok := questionParam(w, r)
	if !ok {
		return
	}

	n, err := h.queue.Len(r.Context(), questionID)
	if err != nil {
		h.unavailable(w, questionID, err)
		return
	}
	stale, err := h.queue.NeedsRefill(r.Context(), questionID)
	if err != nil {
		h.unavailable(w, questionID, err)
		return
	}
	h.respond(w, QueueStatusResponse{QuestionID: questionID.String(), Length: n, NeedsRefill: stale})
}

// Next takes the head of the queue.
func (h *HTTPHandler) Next(w http.ResponseWriter, r *http.Request) {
	questionID, ok := questionParam(w, r)
	if !ok {
		return
	}

	id, err := h.queue.Pop(r.Context(), questionID)
	if errors.Is(err, ErrQueueEmpty) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeQueueEmpty, "No queued prompt")
		return
	}
	if err != nil {
		h.unavailable(w, questionID, err)
		return
	}
	h.respond(w, NextPromptResponse{QuestionID: questionID.String(), PromptID: id.String()})
}

func questionParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *HTTPHandler) unavailable(w http.ResponseWriter, questionID uuid.UUID, err error) {
	h.logger.Warn().Err(err).Str("question_id", questionID.String()).Msg("prompt queue read failed")
	httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "Prompt queue unavailable")
}

func (h *HTTPHandler) respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode prompt queue response")
	}
}
