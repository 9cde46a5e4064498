// Package core provides the main EverMem client and the memory pipeline.
package core

import (
	"github.com/evermem/evermem-go/pkg/intelligence"
	"github.com/evermem/evermem-go/pkg/storage"
)

// fromStorageMemory converts a storage.Memory to core.Memory.
//
// This function is used internally to convert between package types
// to avoid circular dependencies.
func fromStorageMemory(m *storage.Memory) *Memory {
	return &Memory{
		MemoryID:  m.MemoryID,
		Source:    m.Source,
		Content:   m.Content,
		Type:      m.Type,
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
		Embedding: m.Embedding,
	}
}

// fromStorageMemories converts a slice of storage.Memory to a slice of
// core.Memory.
//
// This function is used internally for batch conversion between package types.
func fromStorageMemories(memories []*storage.Memory) []*Memory {
	result := make([]*Memory, len(memories))
	for i, m := range memories {
		result[i] = fromStorageMemory(m)
	}
	return result
}

// toIntelligenceTurns converts conversation turns to the intelligence
// package's mirror type.
func toIntelligenceTurns(turns []Turn) []intelligence.Turn {
	result := make([]intelligence.Turn, len(turns))
	for i, t := range turns {
		result[i] = intelligence.Turn{
			User:      t.User,
			Assistant: t.Assistant,
		}
	}
	return result
}
