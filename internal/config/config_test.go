package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_USER", "pairwise")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_DATABASE", "pairwise")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pairwise", cfg.Name)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 3, cfg.Postgres.TxRetries)
	assert.Equal(t, 4, cfg.Tasks.Concurrency)
	assert.Equal(t, 5, cfg.Tasks.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Tasks.BaseBackoff)
	assert.Equal(t, 168*time.Hour, cfg.Tasks.LedgerTTL)
	assert.Equal(t, "prompt_queue", cfg.PromptQueue.KeyPrefix)
	assert.Equal(t, "pairwise:question_stats", cfg.Feed.Channel)
	assert.Empty(t, cfg.Scoring.ProbabilitiesURL)
	assert.Equal(t, "host=db port=5432 user=pairwise password=secret dbname=pairwise sslmode=disable pool_max_conns=10", cfg.Postgres.DSN())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TASKS_CONCURRENCY", "16")
	t.Setenv("PROMPT_QUEUE_TTL", "1h")
	t.Setenv("SCORING_PROBABILITIES_URL", "http://stats:9000")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Tasks.Concurrency)
	assert.Equal(t, time.Hour, cfg.PromptQueue.TTL)
	assert.Equal(t, "http://stats:9000", cfg.Scoring.ProbabilitiesURL)
}

func TestLoadRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}
