package resultstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/resultstore"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, id string, data any, fail error) *result.Envelope {
	t.Helper()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := result.Metadata{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Duration:   1500 * time.Millisecond,
	}
	ref := result.NodeRef{ID: id, Type: "csv"}
	if fail != nil {
		return result.Fail(ref, meta, fail)
	}
	return result.OK(ref, meta, data)
}

func TestNewRecord_SerializesTables(t *testing.T) {
	frame, err := table.NewFrame([]string{"a"}, [][]any{{int64(1)}, {int64(2)}})
	require.NoError(t, err)

	rec, err := resultstore.NewRecord(envelope(t, "load", frame, nil))
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "load", rec.NodeID)
	assert.Equal(t, "csv", rec.NodeType)
	assert.False(t, rec.Error)
	assert.JSONEq(t, `[{"a":1},{"a":2}]`, string(mustData(t, rec)))
}

func TestRecord_EnvelopeRestoresOutcome(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rec, err := resultstore.NewRecord(envelope(t, "n", map[string]any{"k": "v"}, nil))
		require.NoError(t, err)

		env, err := rec.Envelope()
		require.NoError(t, err)
		assert.False(t, env.Error)
		assert.Equal(t, map[string]any{"k": "v"}, env.Data)
		assert.Equal(t, 1500*time.Millisecond, env.Context.Duration)
		assert.Equal(t, "run-1", env.Context.RunID)
	})

	t.Run("failure keeps error text", func(t *testing.T) {
		rec, err := resultstore.NewRecord(envelope(t, "n", nil, errors.New("file not found")))
		require.NoError(t, err)
		assert.True(t, rec.Error)

		env, err := rec.Envelope()
		require.NoError(t, err)
		assert.True(t, env.Error)
		assert.Equal(t, "file not found", env.ErrorText())
	})
}

func TestMemory_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := resultstore.NewMemory()
	defer store.Close()

	for _, id := range []string{"b", "a", "c"} {
		rec, err := resultstore.NewRecord(envelope(t, id, id, nil))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, rec))
	}

	got, err := store.Get(ctx, "run-1", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.NodeID)

	_, err = store.Get(ctx, "run-1", "missing")
	assert.ErrorIs(t, err, resultstore.ErrNotFound)
	_, err = store.Get(ctx, "other-run", "a")
	assert.ErrorIs(t, err, resultstore.ErrNotFound)

	list, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].NodeID)
	assert.Equal(t, "b", list[1].NodeID)
	assert.Equal(t, "c", list[2].NodeID)

	empty, err := store.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := resultstore.NewMemory()

	first, err := resultstore.NewRecord(envelope(t, "n", nil, errors.New("boom")))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, first))

	second, err := resultstore.NewRecord(envelope(t, "n", 42, nil))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Get(ctx, "run-1", "n")
	require.NoError(t, err)
	assert.False(t, got.Error)
}

func mustData(t *testing.T, rec resultstore.Record) []byte {
	t.Helper()
	env, err := rec.Envelope()
	require.NoError(t, err)
	b, err := json.Marshal(env.Data)
	require.NoError(t, err)
	return b
}
