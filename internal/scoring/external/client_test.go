package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchesProbabilities(t *testing.T) {
	question, a, b := uuid.New(), uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/questions/"+question.String()+"/probabilities", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"question_id":"` + question.String() + `","probabilities":{"` +
			a.String() + `":0.6,"` + b.String() + `":0.4}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", srv.Client())
	probs, err := client.BradleyTerryProbabilities(context.Background(), question)
	require.NoError(t, err)
	assert.Len(t, probs, 2)
	assert.InDelta(t, 0.6, probs[a], 1e-9)
	assert.InDelta(t, 0.4, probs[b], 1e-9)
}

func TestClientRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil).BradleyTerryProbabilities(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "503")
}

func TestClientEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	probs, err := NewClient(srv.URL, "", nil).BradleyTerryProbabilities(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, probs)
	assert.Empty(t, probs)
}
