package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/pairwise/pkg/http/errors"
)

// TokenIssuer signs visitor tokens.
type TokenIssuer interface {
	GenerateAccessToken(visitorID uuid.UUID) (string, error)
	TTL() time.Duration
}

// HTTPHandlers exposes visitor identity endpoints.
type HTTPHandlers struct {
	tokens TokenIssuer
	logger zerolog.Logger
}

// NewHTTPHandlers creates the visitor identity handlers.
func NewHTTPHandlers(tokens TokenIssuer, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		tokens: tokens,
		logger: logger.With().Str("component", "auth_http").Logger(),
	}
}

// VisitorResponse carries a freshly issued visitor identity.
type VisitorResponse struct {
	VisitorID   string `json:"visitor_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CreateVisitor handles POST /v1/visitors. A caller that already holds a
// valid token gets a fresh token for the same visitor.
func (h *HTTPHandlers) CreateVisitor(w http.ResponseWriter, r *http.Request) {
	visitorID, ok := VisitorID(r.Context())
	if !ok {
		visitorID = uuid.New()
	}

	token, err := h.tokens.GenerateAccessToken(visitorID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to sign visitor token")
		httperrors.RespondInternalError(w, "Failed to issue token")
		return
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, VisitorResponse{
		VisitorID:   visitorID.String(),
		AccessToken: token,
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
	})
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode response")
	}
}
