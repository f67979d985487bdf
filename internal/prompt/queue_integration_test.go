//go:build integration

package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/pairwise/internal/model"
	"github.com/gokatarajesh/pairwise/internal/storage"
	"github.com/gokatarajesh/pairwise/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	container, client, err := testutil.StartRedis(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	testRedis = client

	code := m.Run()
	_ = client.Close()
	container.Terminate()
	os.Exit(code)
}

func newQueue(t *testing.T, store storage.Store) *Queue {
	t.Helper()
	return NewQueue(testRedis, store, QueueOptions{KeyPrefix: "test:" + uuid.NewString()}, zerolog.New(io.Discard))
}

func TestQueueRefillCycle(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	q := store.AddQuestion(model.Question{UsesCatchup: true})
	addChoice(t, store, q.ID, true)
	b := addChoice(t, store, q.ID, true)
	_, err := newGenerator(store).Generate(ctx, b.ID)
	require.NoError(t, err)

	prompts := store.Prompts(q.ID)
	require.Len(t, prompts, 2)
	store.SetPromptVotes(prompts[0].ID, 5)

	queue := newQueue(t, store)
	require.NoError(t, queue.MarkForRefill(ctx, q.ID))
	needs, err := queue.NeedsRefill(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, needs)

	picked, err := queue.AddPromptToQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, prompts[1].ID, picked.ID, "least-voted prompt is queued first")

	needs, err = queue.NeedsRefill(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, needs)

	n, err := queue.Len(ctx, q.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	id, err := queue.Pop(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, picked.ID, id)

	_, err = queue.Pop(ctx, q.ID)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestMarkForRefillDropsQueuedPrompts(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	q := store.AddQuestion(model.Question{UsesCatchup: true})
	addChoice(t, store, q.ID, true)
	b := addChoice(t, store, q.ID, true)
	_, err := newGenerator(store).Generate(ctx, b.ID)
	require.NoError(t, err)

	queue := newQueue(t, store)
	_, err = queue.AddPromptToQueue(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, queue.MarkForRefill(ctx, q.ID))
	n, err := queue.Len(ctx, q.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddPromptToQueueWithoutEligiblePrompt(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	q := store.AddQuestion(model.Question{UsesCatchup: true})
	addChoice(t, store, q.ID, true)
	b := addChoice(t, store, q.ID, false)
	_, err := newGenerator(store).Generate(ctx, b.ID)
	require.NoError(t, err)

	_, err = newQueue(t, store).AddPromptToQueue(ctx, q.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
