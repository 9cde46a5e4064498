// Package core provides the main EverMem client and the memory pipeline.
package core

import (
	"errors"
	"fmt"

	"github.com/evermem/evermem-go/pkg/intelligence"
	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/vector"
)

// Predefined errors for common failure scenarios. Errors raised by the
// lower layers are re-exported here so callers can test the whole
// taxonomy with errors.Is against a single package.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates that a connection to a backing store failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrEmbeddingFailure indicates that embedding generation failed or
	// produced vectors of the wrong dimension.
	ErrEmbeddingFailure = errors.New("embedding generation failed")

	// ErrLLMFailure indicates that an LLM call failed on transport level.
	ErrLLMFailure = errors.New("llm call failed")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTarget indicates that a reconciler operation referenced a
	// memory outside the candidate's neighbor set. Such operations are
	// downgraded to NOOP and logged, so the write itself does not fail.
	ErrInvalidTarget = intelligence.ErrInvalidTarget

	// ErrExtractionFailure indicates that memory extraction exhausted its
	// retries without producing valid JSON.
	ErrExtractionFailure = intelligence.ErrExtractionFailure

	// ErrReconcilerFailure indicates that reconciliation exhausted its
	// retries without producing valid JSON.
	ErrReconcilerFailure = intelligence.ErrReconcilerFailure

	// ErrInconsistentUpdate indicates that an UPDATE rewrote the metadata
	// row but failed to update the vector index.
	ErrInconsistentUpdate = intelligence.ErrInconsistentUpdate

	// ErrInconsistentDelete indicates that a DELETE removed a memory from
	// only one of the two stores.
	ErrInconsistentDelete = intelligence.ErrInconsistentDelete

	// ErrMemoryNotFound indicates that a requested memory was not found.
	ErrMemoryNotFound = storage.ErrNotFound

	// ErrDuplicateID indicates that a memory id is already present in a store.
	ErrDuplicateID = storage.ErrDuplicateID

	// ErrDimensionMismatch indicates that a vector does not match the
	// configured index dimension.
	ErrDimensionMismatch = vector.ErrDimensionMismatch
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Write",
//	    Err: ErrEmbeddingFailure,
//	}
//	// Error() returns: "evermem: Write: embedding generation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "evermem: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("evermem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Write", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Write", "Retrieve", "ForgetUser")
//   - err: The underlying error to wrap
//
// Returns a MemoryError, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
