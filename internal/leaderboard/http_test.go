package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRanker struct {
	gotLimit int
	entries  []Entry
	err      error
}

func (s *stubRanker) Top(ctx context.Context, questionID uuid.UUID, limit int) ([]Entry, string, error) {
	s.gotLimit = limit
	return s.entries, SourceCache, s.err
}

func newMux(r Ranker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/questions/{id}/ranking", NewHTTPHandler(r, zerolog.Nop()).HandleGet)
	return mux
}

func TestHandleGet(t *testing.T) {
	question, choice := uuid.New(), uuid.New()
	ranker := &stubRanker{entries: []Entry{{Rank: 1, ChoiceID: choice, Data: "tacos", Score: 71.2}}}

	rec := httptest.NewRecorder()
	newMux(ranker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/questions/"+question.String()+"/ranking?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ranker.gotLimit)

	var resp RankingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, question.String(), resp.QuestionID)
	assert.Equal(t, SourceCache, resp.Source)
	require.Len(t, resp.Top, 1)
	assert.Equal(t, choice, resp.Top[0].ChoiceID)
}

func TestHandleGetErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(&stubRanker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/questions/nope/ranking", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newMux(&stubRanker{err: errors.New("redis down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/questions/"+uuid.NewString()+"/ranking", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, defaultLimit, parseLimit(""))
	assert.Equal(t, 25, parseLimit("25"))
	assert.Equal(t, defaultLimit, parseLimit("0"))
	assert.Equal(t, defaultLimit, parseLimit("1000"))
	assert.Equal(t, defaultLimit, parseLimit("ten"))
}

type recordingInvalidator struct {
	questions []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, questionID uuid.UUID) error {
	r.questions = append(r.questions, questionID)
	return nil
}

func TestSubscriberInvalidatesOnStats(t *testing.T) {
	inv := &recordingInvalidator{}
	sub := NewSubscriber(nil, inv, "stats", zerolog.Nop())
	question := uuid.New()

	sub.handle(context.Background(), `{"question_id":"`+question.String()+`","choices_count":3}`)
	sub.handle(context.Background(), `garbage`)

	assert.Equal(t, []uuid.UUID{question}, inv.questions)
}
