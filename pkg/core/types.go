// Package core provides the main EverMem client and the memory pipeline.
package core

import "time"

// Memory is a single long-term memory owned by the service.
//
// Example:
//
//	memory := &core.Memory{
//	    MemoryID: "1234567890",
//	    Content:  "User likes Python programming",
//	    Type:     "preference",
//	    UserID:   "user_001",
//	}
type Memory struct {
	// MemoryID is the unique identifier of the memory. It is assigned by
	// the client at extraction time and stays stable across updates.
	MemoryID string `json:"memory_id"`

	// Source records where the memory came from (e.g. "user_message",
	// "agent_message"). Free-form; the service does not enforce an enum.
	Source string `json:"source,omitempty"`

	// Content is the text content of the memory.
	Content string `json:"content"`

	// Type is a semantic category such as "preference" or "fact".
	Type string `json:"type,omitempty"`

	// Timestamp is the creation or last-update time, always UTC.
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies the user who owns this memory. Empty means the
	// memory is unscoped.
	UserID string `json:"user_id,omitempty"`

	// Embedding is the vector representation of Content. Populated on the
	// write path; retrieval does not re-read it.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Turn is one user/assistant exchange from the conversation history.
//
// Either side may be empty when the exchange was one-sided.
type Turn struct {
	// User is the user's message in this exchange.
	User string `json:"user"`

	// Assistant is the assistant's reply in this exchange.
	Assistant string `json:"assistant"`
}

// ExtractionMode selects which side of the conversation the extractor
// mines for memories.
type ExtractionMode string

const (
	// ModeUser extracts memories about the user from user messages.
	ModeUser ExtractionMode = "user"

	// ModeAgent extracts memories about the assistant from its replies.
	ModeAgent ExtractionMode = "agent"

	// ModeBoth runs both extractions and merges the results.
	ModeBoth ExtractionMode = "both"
)
