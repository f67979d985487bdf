package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRespondValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondValidationError(rec, ErrCodeValidationFailed, "data is required", "data")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, ErrCodeValidationFailed, body.Error)
	assert.Equal(t, "data", body.Field)
}

func TestRespondWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDetails(rec, http.StatusInternalServerError, ErrCodePersistenceFailed, "Could not save changes",
		map[string]interface{}{"op": "update choice"})

	body := decode(t, rec)
	assert.Equal(t, ErrCodePersistenceFailed, body.Error)
	assert.Equal(t, "update choice", body.Details["op"])
	assert.Empty(t, body.Field)
}

func TestStatusHelpers(t *testing.T) {
	cases := []struct {
		write func(w http.ResponseWriter)
		want  int
	}{
		{func(w http.ResponseWriter) { RespondNotFound(w, ErrCodeChoiceNotFound, "x") }, http.StatusNotFound},
		{func(w http.ResponseWriter) { RespondUnauthorized(w, ErrCodeInvalidToken, "x") }, http.StatusUnauthorized},
		{func(w http.ResponseWriter) { RespondUnprocessable(w, ErrCodeInvalidScoringInput, "x") }, http.StatusUnprocessableEntity},
		{func(w http.ResponseWriter) { RespondServiceUnavailable(w, ErrCodeScoringUnavailable, "x") }, http.StatusServiceUnavailable},
		{func(w http.ResponseWriter) { RespondInternalError(w, "x") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.write(rec)
		assert.Equal(t, tc.want, rec.Code)
	}
}
