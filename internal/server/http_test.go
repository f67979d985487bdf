package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/pairwise/internal/auth"
	"github.com/gokatarajesh/pairwise/internal/auth/jwt"
	"github.com/gokatarajesh/pairwise/internal/prompt"
)

func newTokens() *jwt.Manager {
	return jwt.NewManager(jwt.TokenConfig{Secret: []byte("server-test"), TTL: time.Minute})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := NewHandler(zerolog.Nop(), nil, newTokens(), Handlers{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPing(t *testing.T) {
	ok := NewHandler(zerolog.Nop(), func(context.Context) error { return nil }, nil, Handlers{})
	assert.Equal(t, http.StatusOK, serve(ok, httptest.NewRequest(http.MethodGet, "/v1/ping", nil)).Code)

	down := NewHandler(zerolog.Nop(), func(context.Context) error { return errors.New("redis down") }, nil, Handlers{})
	assert.Equal(t, http.StatusBadGateway, serve(down, httptest.NewRequest(http.MethodGet, "/v1/ping", nil)).Code)
}

func TestFeedRouteWithoutHandler(t *testing.T) {
	h := NewHandler(zerolog.Nop(), nil, nil, Handlers{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ws/questions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestFeedRouteReceivesPathValue(t *testing.T) {
	var got string
	h := NewHandler(zerolog.Nop(), nil, nil, Handlers{QuestionFeed: func(w http.ResponseWriter, r *http.Request) {
		got = r.PathValue("id")
		w.WriteHeader(http.StatusTeapot)
	}})
	id := uuid.NewString()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ws/questions/"+id, nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, id, got)
}

func TestVisitorFlow(t *testing.T) {
	tokens := newTokens()
	h := NewHandler(zerolog.Nop(), nil, tokens, Handlers{Auth: auth.NewHTTPHandlers(tokens, zerolog.Nop())})

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/v1/visitors", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/visitors", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}

type stubPromptQueue struct{}

func (stubPromptQueue) Len(context.Context, uuid.UUID) (int64, error) { return 3, nil }
func (stubPromptQueue) NeedsRefill(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (stubPromptQueue) Pop(context.Context, uuid.UUID) (uuid.UUID, error) { return uuid.Nil, prompt.ErrQueueEmpty }

func TestPromptQueueRoutes(t *testing.T) {
	h := NewHandler(zerolog.Nop(), nil, nil, Handlers{PromptQueue: prompt.NewHTTPHandler(stubPromptQueue{}, zerolog.Nop())})
	base := "/v1/questions/" + uuid.NewString() + "/prompt-queue"

	rec := serve(h, httptest.NewRequest(http.MethodGet, base, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"length":3`)

	rec = serve(h, httptest.NewRequest(http.MethodPost, base+"/next", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
