package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestEnqueuePreservesOrder(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"/api/deliveries", "/api/visits/1/note", "/api/visits/1/submit"} {
		_, err := store.Enqueue(ctx, "POST", path, map[string]string{"p": path})
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "/api/deliveries", entries[0].Path)
	assert.Equal(t, "/api/visits/1/note", entries[1].Path)
	assert.Equal(t, "/api/visits/1/submit", entries[2].Path)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Less(t, entries[1].Seq, entries[2].Seq)
}

func TestEnqueueAssignsUniqueIDs(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	a, err := store.Enqueue(ctx, "POST", "/api/deliveries", nil)
	require.NoError(t, err)
	b, err := store.Enqueue(ctx, "POST", "/api/deliveries", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Enqueue(context.Background(), "POST", "/api/deliveries", map[string]any{"box": "b1"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "POST", entries[0].Method)
	assert.JSONEq(t, `{"box":"b1"}`, string(entries[0].Body))
}

func TestDeleteRemovesOnlyTarget(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, "POST", "/api/deliveries", nil)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, "POST", "/api/visits/1/submit", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, first.ID))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/visits/1/submit", entries[0].Path)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkFailedKeepsEntryAndCountsAttempts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	entry, err := store.Enqueue(ctx, "POST", "/api/deliveries", nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, entry.ID, "dial tcp: connection refused"))
	require.NoError(t, store.MarkFailed(ctx, entry.ID, "504 gateway timeout"))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, "504 gateway timeout", entries[0].LastError)
}

func TestEnqueueWithoutBody(t *testing.T) {
	store, _ := openTestStore(t)

	entry, err := store.Enqueue(context.Background(), "POST", "/api/visits/1/submit", nil)
	require.NoError(t, err)
	assert.Empty(t, entry.Body)
}

func TestOpenCreatesStateDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "queue.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
