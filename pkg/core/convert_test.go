package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/storage"
)

func TestFromStorageMemory(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	m := &storage.Memory{
		MemoryID:  "mem_1",
		Source:    "user_message",
		Content:   "User lives in Berlin",
		Type:      "fact",
		Timestamp: ts,
		UserID:    "alice",
		Embedding: []float32{1, 0, 0, 0},
	}

	got := fromStorageMemory(m)

	assert.Equal(t, "mem_1", got.MemoryID)
	assert.Equal(t, "user_message", got.Source)
	assert.Equal(t, "User lives in Berlin", got.Content)
	assert.Equal(t, "fact", got.Type)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)
}

func TestFromStorageMemories(t *testing.T) {
	memories := []*storage.Memory{
		{MemoryID: "mem_1", Content: "User lives in Berlin"},
		{MemoryID: "mem_2", Content: "User has a cat"},
	}

	got := fromStorageMemories(memories)

	require.Len(t, got, 2)
	assert.Equal(t, "mem_1", got[0].MemoryID)
	assert.Equal(t, "mem_2", got[1].MemoryID)

	empty := fromStorageMemories(nil)
	assert.Empty(t, empty)
}

func TestToIntelligenceTurns(t *testing.T) {
	turns := []Turn{
		{User: "I just moved to Berlin.", Assistant: "Welcome!"},
		{User: "Any food tips?", Assistant: "Try the markets in Kreuzberg."},
	}

	got := toIntelligenceTurns(turns)

	require.Len(t, got, 2)
	assert.Equal(t, "I just moved to Berlin.", got[0].User)
	assert.Equal(t, "Welcome!", got[0].Assistant)
	assert.Equal(t, "Try the markets in Kreuzberg.", got[1].Assistant)

	assert.Empty(t, toIntelligenceTurns(nil))
}
