package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/pairwise/pkg/http/errors"
)

// Ranker serves rankings.
type Ranker interface {
	Top(ctx context.Context, questionID uuid.UUID, limit int) ([]Entry, string, error)
}

// HTTPHandler exposes REST endpoints for ranking queries.
type HTTPHandler struct {
	svc    Ranker
	logger zerolog.Logger
}

// NewHTTPHandler constructs a ranking HTTP handler.
func NewHTTPHandler(svc Ranker, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// RankingResponse is the body of GET /v1/questions/{id}/ranking.
type RankingResponse struct {
	QuestionID  string  `json:"question_id"`
	Top         []Entry `json:"top"`
	Source      string  `json:"source"`
	RetrievedAt string  `json:"retrievedAt"`
}

// HandleGet responds with the current ranking of a question.
// Route: GET /v1/questions/{id}/ranking?limit=10
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return
	}

	top, source, err := h.svc.Top(r.Context(), questionID, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.logger.Warn().Err(err).Str("question_id", questionID.String()).Msg("ranking fetch failed")
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "Ranking unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(RankingResponse{
		QuestionID:  questionID.String(),
		Top:         top,
		Source:      source,
		RetrievedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode ranking response")
	}
}
