package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/storage/sqlite"
)

func setupStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "evermem_test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleMemory(id, userID string) *storage.Memory {
	return &storage.Memory{
		MemoryID:  id,
		Source:    "user_message",
		Content:   "content of " + id,
		Type:      "fact",
		Timestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		UserID:    userID,
		Embedding: []float32{0.1, 0.2, 0.3},
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	store := setupStore(t)
	assert.NoError(t, store.EnsureSchema(context.Background()))
}

func TestInsertAndGetByIDs(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	want := sampleMemory("mem_1", "alice")
	require.NoError(t, store.Insert(ctx, want))

	rows, err := store.GetByIDs(ctx, []string{"mem_1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, "mem_1", got.MemoryID)
	assert.Equal(t, "user_message", got.Source)
	assert.Equal(t, "content of mem_1", got.Content)
	assert.Equal(t, "fact", got.Type)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.WithinDuration(t, want.Timestamp, got.Timestamp, time.Second)
}

func TestInsert_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, sampleMemory("mem_1", "alice")))

	err := store.Insert(ctx, sampleMemory("mem_1", "alice"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrDuplicateID))
}

func TestInsert_WithoutUserAndEmbedding(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	m := sampleMemory("mem_1", "")
	m.Embedding = nil
	require.NoError(t, store.Insert(ctx, m))

	rows, err := store.GetByIDs(ctx, []string{"mem_1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].UserID)
	assert.Nil(t, rows[0].Embedding)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	m := sampleMemory("mem_1", "alice")
	require.NoError(t, store.Insert(ctx, m))

	m.Content = "User moved to Bangalore"
	m.Type = "location"
	m.Embedding = []float32{0.9, 0.8, 0.7}
	require.NoError(t, store.Update(ctx, m))

	rows, err := store.GetByIDs(ctx, []string{"mem_1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "User moved to Bangalore", rows[0].Content)
	assert.Equal(t, "location", rows[0].Type)
	assert.Equal(t, []float32{0.9, 0.8, 0.7}, rows[0].Embedding)
}

func TestUpdate_NotFound(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	err := store.Update(ctx, sampleMemory("ghost", "alice"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, sampleMemory("mem_1", "alice")))
	require.NoError(t, store.Delete(ctx, "mem_1"))

	rows, err := store.GetByIDs(ctx, []string{"mem_1"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Deleting an absent id is not an error.
	assert.NoError(t, store.Delete(ctx, "mem_1"))
}

func TestGetByIDs_DedupesAndSkipsMissing(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, sampleMemory("mem_1", "alice")))
	require.NoError(t, store.Insert(ctx, sampleMemory("mem_2", "alice")))

	rows, err := store.GetByIDs(ctx, []string{"mem_1", "mem_1", "ghost", "mem_2"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestDeleteAllForUser(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, sampleMemory("mem_1", "alice")))
	require.NoError(t, store.Insert(ctx, sampleMemory("mem_2", "alice")))
	require.NoError(t, store.Insert(ctx, sampleMemory("mem_3", "bob")))

	count, err := store.DeleteAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.DeleteAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	rows, err := store.GetByIDs(ctx, []string{"mem_3"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeleteAllForUser_EmptyTargetsUnscopedRows(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, sampleMemory("mem_scoped", "alice")))
	require.NoError(t, store.Insert(ctx, sampleMemory("mem_unscoped", "")))

	count, err := store.DeleteAllForUser(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := store.GetByIDs(ctx, []string{"mem_scoped"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPing(t *testing.T) {
	store := setupStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
