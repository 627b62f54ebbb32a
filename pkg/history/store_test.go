package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "task-1", 1, "user", "first message"))
	require.NoError(t, store.Append(ctx, "task-1", 1, "assistant", "first reply"))
	require.NoError(t, store.Append(ctx, "task-2", 1, "user", "second task"))

	msgs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first reply", msgs[0].Content, "recent returns chronological order")
	assert.Equal(t, "second task", msgs[1].Content)
}

func TestSearchEscapesWildcards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "t", 1, "user", "progress at 100% done"))
	require.NoError(t, store.Append(ctx, "t", 1, "user", "unrelated note"))

	msgs, err := store.Search(ctx, "100%", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "100%")

	msgs, err = store.Search(ctx, "%", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "literal percent matches only the row containing one")
}

func TestForTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", 1, "user", "one"))
	require.NoError(t, store.Append(ctx, "b", 1, "user", "other"))
	require.NoError(t, store.Append(ctx, "a", 2, "assistant", "two"))

	msgs, err := store.ForTask(ctx, "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, 2, msgs[1].Round)
}
