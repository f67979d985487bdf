package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/pairwise/internal/auth/jwt"
)

func newManager() *jwt.Manager {
	return jwt.NewManager(jwt.TokenConfig{Secret: []byte("test-secret"), TTL: time.Minute})
}

func echoVisitor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := VisitorID(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(id.String()))
	})
}

func TestMiddlewareInjectsVisitor(t *testing.T) {
	tokens := newManager()
	visitor := uuid.New()
	token, err := tokens.GenerateAccessToken(visitor)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(tokens, zerolog.Nop())(echoVisitor()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, visitor.String(), rec.Body.String())
}

func TestMiddlewareAllowsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(newManager(), zerolog.Nop())(echoVisitor()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	other := jwt.NewManager(jwt.TokenConfig{Secret: []byte("another-secret")})
	foreign, err := other.GenerateAccessToken(uuid.New())
	require.NoError(t, err)

	for name, header := range map[string]string{
		"malformed header": "Token abc",
		"garbage":          "Bearer not-a-jwt",
		"wrong secret":     "Bearer " + foreign,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			Middleware(newManager(), zerolog.Nop())(echoVisitor()).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireVisitor(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireVisitor(echoVisitor()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	visitor := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), &jwt.Claims{VisitorID: visitor}))
	rec = httptest.NewRecorder()
	RequireVisitor(echoVisitor()).ServeHTTP(rec, req)
	assert.Equal(t, visitor.String(), rec.Body.String())
}

func TestExpiredToken(t *testing.T) {
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("s"), TTL: -time.Minute})
	token, err := tokens.GenerateAccessToken(uuid.New())
	require.NoError(t, err)

	_, err = tokens.ValidateAccessToken(token)
	assert.ErrorIs(t, err, jwt.ErrExpiredToken)
}
