package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "pairwise", "production", "debug")
	logger.Debug().Str("choice_id", "c1").Msg("choice created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pairwise", line["app"])
	assert.Equal(t, "production", line["env"])
	assert.Equal(t, "c1", line["choice_id"])
}

func TestLevelFiltersAndFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "pairwise", "production", "warn")
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	buf.Reset()
	logger = newWithWriter(&buf, "pairwise", "production", "chatty")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "pairwise", "production", "info")

	ctx := IntoContext(context.Background(), logger)
	l := FromContext(ctx)
	l.Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")

	assert.Equal(t, zerolog.Disabled, FromContext(context.Background()).GetLevel())
}
