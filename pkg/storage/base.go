// Package storage defines the metadata store abstraction.
//
// The metadata store keeps the durable row-per-memory copy of every memory.
// It is written by the reconciler and read by the retrieval path to hydrate
// vector search hits; it is never consulted during reconciliation itself.
package storage

import (
	"context"
	"errors"
	"time"
)

// Memory is the row stored per memory.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Memory structure.
type Memory struct {
	// MemoryID is the globally unique, immutable identifier. It doubles as
	// the vector id in the vector index.
	MemoryID string

	// Source records the provenance of the fact (user_message,
	// assistant_message, or conversation).
	Source string

	// Content is the atomic factual statement. Never empty.
	Content string

	// Type is a short free-form category tag ("preference", "fact", ...).
	Type string

	// Timestamp is the creation or last-update instant, in UTC.
	Timestamp time.Time

	// UserID is the opaque scope key. Empty means unscoped.
	UserID string

	// Embedding is a cached copy of the vector, kept for debugging. The
	// authoritative copy lives in the vector index.
	Embedding []float32
}

// Sentinel errors returned by MetadataStore implementations.
var (
	// ErrNotFound is returned by Update when no row matches the memory id.
	ErrNotFound = errors.New("storage: memory not found")

	// ErrDuplicateID is returned by Insert when a row with the memory id
	// already exists.
	ErrDuplicateID = errors.New("storage: duplicate memory id")
)

// MetadataStore defines the interface for metadata storage backends.
//
// All implementations (SQLite, PostgreSQL, MySQL) must satisfy this
// interface. Soft deletes are not allowed; Delete and DeleteAllForUser
// remove rows outright.
type MetadataStore interface {
	// EnsureSchema idempotently creates the row structure and the secondary
	// indexes on memory_id (unique), user_id, type, and timestamp.
	EnsureSchema(ctx context.Context) error

	// Insert stores a new row. The memory must carry an assigned id;
	// inserting an existing id returns ErrDuplicateID.
	Insert(ctx context.Context, m *Memory) error

	// Update replaces the row whose id matches m.MemoryID with m's field
	// values. Returns ErrNotFound when no row matches.
	Update(ctx context.Context, m *Memory) error

	// Delete removes the row for the given id. Deleting an absent id is not
	// an error.
	Delete(ctx context.Context, memoryID string) error

	// GetByIDs returns the rows for the ids that exist. Order is
	// unspecified and duplicate ids are collapsed.
	GetByIDs(ctx context.Context, ids []string) ([]*Memory, error)

	// DeleteAllForUser removes every row in the given user scope and
	// returns how many were removed. An empty userID targets unscoped rows.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)

	// Ping verifies the store with a trivial round-trip.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// DedupeIDs collapses duplicate ids while preserving first-seen order.
// Shared by implementations so multi-id fetches stay free of repeated
// placeholders.
func DedupeIDs(ids []string) []string {
	if len(ids) <= 1 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
