package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/pairwise/internal/auth/jwt"
)

func TestCreateVisitorIssuesToken(t *testing.T) {
	tokens := newManager()
	h := NewHTTPHandlers(tokens, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreateVisitor(rec, httptest.NewRequest(http.MethodPost, "/v1/visitors", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp VisitorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 60, resp.ExpiresIn)

	claims, err := tokens.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.VisitorID, claims.VisitorID.String())
}

func TestCreateVisitorRefreshesKnownVisitor(t *testing.T) {
	tokens := newManager()
	h := NewHTTPHandlers(tokens, zerolog.Nop())
	visitor := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/visitors", nil)
	req = req.WithContext(WithClaims(req.Context(), &jwt.Claims{VisitorID: visitor}))
	rec := httptest.NewRecorder()
	h.CreateVisitor(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VisitorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, visitor.String(), resp.VisitorID)
}
