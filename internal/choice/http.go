package choice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/auth"
	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
	httperrors "github.com/gokatarajesh/pairwise/pkg/http/errors"
)

// Scorer computes choice scores on request.
type Scorer interface {
	ComputeAndPersistScore(ctx context.Context, choiceID uuid.UUID) (float64, error)
	AggregateScoreForChoice(ctx context.Context, choiceID uuid.UUID) (float64, error)
}

// HTTPHandler exposes the choice lifecycle over REST.
type HTTPHandler struct {
	svc    *Service
	scorer Scorer
	logger zerolog.Logger
}

// NewHTTPHandler constructs the choice HTTP handler.
func NewHTTPHandler(svc *Service, scorer Scorer, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		scorer: scorer,
		logger: logger.With().Str("component", "choice_http").Logger(),
	}
}

// CreateChoiceRequest is the body of POST /v1/questions/{id}/choices.
type CreateChoiceRequest struct {
	Data   string `json:"data"`
	Active *bool  `json:"active,omitempty"`
	Batch  bool   `json:"batch,omitempty"`
}

// ReassignRequest is the body of PUT /v1/choices/{id}/question.
type ReassignRequest struct {
	QuestionID uuid.UUID `json:"question_id"`
}

// FinalizeBatchRequest is the body of POST /v1/questions/{id}/choices/finalize.
type FinalizeBatchRequest struct {
	ChoiceIDs []uuid.UUID `json:"choice_ids"`
}

// ChoiceResponse is the JSON view of a choice.
type ChoiceResponse struct {
	model.Choice
	HasHistory bool `json:"has_history"`
}

// Create handles POST /v1/questions/{id}/choices
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return
	}
	visitor, ok := auth.VisitorID(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req CreateChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	c, err := h.svc.Create(r.Context(), CreateRequest{
		QuestionID: questionID,
		CreatorID:  visitor,
		Data:       req.Data,
		Active:     req.Active,
		Batch:      req.Batch,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(c))
}

// Activate handles POST /v1/choices/{id}/activate
func (h *HTTPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Activate)
}

// Deactivate handles POST /v1/choices/{id}/deactivate
func (h *HTTPHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Deactivate)
}

func (h *HTTPHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, ...MutationOption) (model.Choice, error)) {
	id, ok := choiceID(w, r)
	if !ok {
		return
	}
	var opts []MutationOption
	if r.URL.Query().Get("batch") == "true" {
		opts = append(opts, InBatch())
	}
	c, err := fn(r.Context(), id, opts...)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(c))
}

// Reassign handles PUT /v1/choices/{id}/question
func (h *HTTPHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	id, ok := choiceID(w, r)
	if !ok {
		return
	}
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	c, err := h.svc.Reassign(r.Context(), id, req.QuestionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(c))
}

// GeneratePrompts handles POST /v1/choices/{id}/prompts
func (h *HTTPHandler) GeneratePrompts(w http.ResponseWriter, r *http.Request) {
	id, ok := choiceID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.GeneratePrompts(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeChoiceNotFound, "Choice not found")
			return
		}
		h.logger.Error().Err(err).Str("choice_id", id.String()).Msg("generate prompts request failed")
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeEnqueueFailed, "Could not schedule prompt generation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": t.ID,
		"key":     t.Key(),
	})
}

// FinalizeBatch handles POST /v1/questions/{id}/choices/finalize
func (h *HTTPHandler) FinalizeBatch(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return
	}
	var req FinalizeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if err := h.svc.FinalizeBatch(r.Context(), questionID, req.ChoiceIDs); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Score handles POST /v1/choices/{id}/score
func (h *HTTPHandler) Score(w http.ResponseWriter, r *http.Request) {
	id, ok := choiceID(w, r)
	if !ok {
		return
	}
	score, err := h.scorer.ComputeAndPersistScore(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"choice_id":  id,
		"score":      score,
		"computedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// AggregateScore handles POST /v1/choices/{id}/aggregate-score
func (h *HTTPHandler) AggregateScore(w http.ResponseWriter, r *http.Request) {
	id, ok := choiceID(w, r)
	if !ok {
		return
	}
	score, err := h.scorer.AggregateScoreForChoice(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"choice_id":       id,
		"aggregate_score": score,
	})
}

func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, err error) {
	var (
		validation  *model.ValidationError
		input       *model.InputError
		persistence *model.PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, validation.Error(), validation.Field)
	case errors.As(err, &input):
		httperrors.RespondUnprocessable(w, httperrors.ErrCodeInvalidScoringInput, input.Error())
	case errors.Is(err, storage.ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "Resource not found")
	case errors.As(err, &persistence):
		h.logger.Error().Err(err).Str("op", persistence.Op).Msg("persistence failure")
		httperrors.RespondWithDetails(w, http.StatusInternalServerError, httperrors.ErrCodePersistenceFailed, "Could not save changes",
			map[string]interface{}{"op": persistence.Op})
	default:
		h.logger.Error().Err(err).Msg("request failed")
		httperrors.RespondInternalError(w, "Internal error")
	}
}

func choiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidChoiceID, "Invalid choice id")
		return uuid.Nil, false
	}
	return id, true
}

func toResponse(c model.Choice) ChoiceResponse {
	return ChoiceResponse{Choice: c, HasHistory: HasHistory(c)}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
