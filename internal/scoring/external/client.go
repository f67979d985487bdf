// Package external fetches Bradley–Terry win probabilities from the
// statistics service that models them.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client calls GET {baseURL}/questions/{id}/probabilities.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a probability client. A nil httpClient gets a 5s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type probabilitiesResponse struct {
	QuestionID    uuid.UUID             `json:"question_id"`
	Probabilities map[uuid.UUID]float64 `json:"probabilities"`
}

// BradleyTerryProbabilities returns the modelled probability of every choice
// of the question.
func (c *Client) BradleyTerryProbabilities(ctx context.Context, questionID uuid.UUID) (map[uuid.UUID]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/questions/%s/probabilities", c.baseURL, questionID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("probability service non-200: %d", resp.StatusCode)
	}

	var payload probabilitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode probabilities: %w", err)
	}
	if payload.Probabilities == nil {
		payload.Probabilities = map[uuid.UUID]float64{}
	}
	return payload.Probabilities, nil
}
