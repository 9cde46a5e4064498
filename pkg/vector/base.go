// Package vector defines the vector index abstraction used for semantic
// memory lookup.
//
// An Index stores (id, vector, payload) triples and answers nearest-neighbor
// queries with optional equality filtering over payload fields. The service
// uses the payloads as the reconciler's view of existing memories, so they
// carry every identifying field of a memory.
package vector

import (
	"context"
	"errors"
)

// Metric selects how similarity between vectors is computed.
type Metric string

const (
	// MetricL2 uses Euclidean distance d, exposed as the score 1/(1+d).
	MetricL2 Metric = "L2"

	// MetricIP uses the raw inner product. Higher is more similar.
	MetricIP Metric = "IP"

	// MetricCosine stores and queries L2-normalized vectors and reports the
	// inner product clamped to [0, 1].
	MetricCosine Metric = "COSINE"
)

// ParseMetric maps a configuration string onto a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, MetricIP, MetricCosine:
		return Metric(s), nil
	case "":
		return MetricL2, nil
	default:
		return "", errors.New("vector: unknown metric " + s)
	}
}

// Payload is the metadata carried alongside a vector. It is a superset of the
// identifying fields of a memory and is what the reconciler sees; the
// metadata store is never consulted during reconciliation.
type Payload struct {
	MemoryID  string `json:"memory_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
}

// Field returns the payload value for a filterable key. The second return is
// false for keys the payload does not carry.
func (p Payload) Field(key string) (string, bool) {
	switch key {
	case "memory_id":
		return p.MemoryID, true
	case "content":
		return p.Content, true
	case "source":
		return p.Source, true
	case "timestamp":
		return p.Timestamp, true
	case "user_id":
		return p.UserID, true
	default:
		return "", false
	}
}

// SearchResult is a single nearest-neighbor hit.
type SearchResult struct {
	// ID is the memory id of the hit.
	ID string

	// Score is the similarity score. Larger means more similar for every
	// metric, so callers can sort uniformly.
	Score float64

	// Payload is the metadata stored with the vector.
	Payload Payload
}

// Sentinel errors returned by Index implementations.
var (
	// ErrDimensionMismatch is returned when a vector's dimension differs
	// from the index dimension fixed at construction.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")

	// ErrDuplicateID is returned by Insert when the id is already present.
	ErrDuplicateID = errors.New("vector: duplicate id")

	// ErrNotFound is returned by Update and Delete for unknown ids.
	ErrNotFound = errors.New("vector: id not found")
)

// Index is the vector index interface (insert, update, delete, search, and
// user-scoped bulk removal).
//
// Implementations must serialize mutating operations; searches may run
// concurrently against a consistent snapshot. Every mutation is persisted
// before the call returns.
type Index interface {
	// Insert adds a fresh id with its vector and payload. A duplicate id is
	// rejected with ErrDuplicateID.
	Insert(ctx context.Context, id string, vec []float32, payload Payload) error

	// Update replaces the vector and/or the payload of an existing id.
	// A nil vec keeps the stored vector; a nil payload keeps the stored
	// payload. The id remains stable externally even if the implementation
	// re-inserts the vector internally.
	Update(ctx context.Context, id string, vec []float32, payload *Payload) error

	// Delete removes an id from the index. The freed slot need not be
	// reclaimed immediately.
	Delete(ctx context.Context, id string) error

	// Search returns at most k results sorted by decreasing score. The
	// filter is a conjunction of equality predicates over payload fields;
	// the `type` key is ignored (see the service documentation).
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]SearchResult, error)

	// DeleteAllForUser removes every entry whose payload user_id equals
	// userID and returns how many were removed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)

	// Ping reports whether the index is initialized with the configured
	// dimension.
	Ping(ctx context.Context) error

	// Close releases resources held by the index.
	Close() error
}
