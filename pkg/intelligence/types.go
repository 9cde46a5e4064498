// Package intelligence turns raw conversation turns into durable memories.
//
// It hosts the two LLM-backed stages of the write pipeline: the Extractor,
// which distills candidate memories out of a conversation, and the Reconciler,
// which decides how each candidate relates to what is already stored and
// applies the outcome to the metadata store and the vector index.
package intelligence

import (
	"errors"

	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/vector"
)

// Turn is one user/assistant exchange from the recent conversation history.
//
// This type mirrors core.Turn and is defined locally to prevent import cycles.
type Turn struct {
	// User is the user's message in this exchange.
	User string

	// Assistant is the assistant's reply in this exchange.
	Assistant string
}

// Mode selects whose side of the conversation the extractor mines for facts.
type Mode string

const (
	// ModeUser extracts facts from user messages only.
	ModeUser Mode = "user"

	// ModeAgent extracts facts about the assistant from assistant messages only.
	ModeAgent Mode = "agent"

	// ModeBoth runs both extractions and merges the results.
	ModeBoth Mode = "both"
)

// Action is a reconciler decision for one candidate memory.
type Action string

const (
	// ActionAdd stores the candidate as a new memory.
	ActionAdd Action = "ADD"

	// ActionUpdate overwrites an existing memory with the candidate.
	ActionUpdate Action = "UPDATE"

	// ActionDelete removes an existing memory the candidate contradicts.
	ActionDelete Action = "DELETE"

	// ActionNoop discards the candidate.
	ActionNoop Action = "NOOP"
)

// Candidate pairs an extracted memory with the existing memories found near it.
type Candidate struct {
	// ID is a temporary correlator, unique within one reconciliation batch.
	ID string

	// Memory is the extracted candidate.
	Memory *storage.Memory

	// Neighbors holds the payloads of the nearest existing memories.
	Neighbors []vector.Payload
}

// Operation is one validated reconciler decision.
type Operation struct {
	// CandidateID echoes the Candidate.ID the decision belongs to.
	CandidateID string

	// Action is the decided operation.
	Action Action

	// TargetMemoryID names the existing memory acted on. It is empty for
	// ADD and NOOP.
	TargetMemoryID string

	// Confidence is the model's self-reported confidence in [0, 1].
	Confidence float64
}

var (
	// ErrExtractionFailure indicates the extractor failed to obtain valid
	// JSON from the LLM within its retry budget.
	ErrExtractionFailure = errors.New("intelligence: memory extraction failed")

	// ErrReconcilerFailure indicates the reconciler failed to obtain valid
	// JSON from the LLM within its retry budget.
	ErrReconcilerFailure = errors.New("intelligence: reconciliation failed")

	// ErrInvalidTarget indicates a reconciler operation referenced a memory
	// outside the candidate's neighbor set. The operation is downgraded to
	// NOOP instead of failing the write.
	ErrInvalidTarget = errors.New("intelligence: invalid operation target")

	// ErrInconsistentUpdate indicates a metadata row was updated but the
	// matching vector update failed.
	ErrInconsistentUpdate = errors.New("intelligence: inconsistent update across stores")

	// ErrInconsistentDelete indicates a delete succeeded in only one of the
	// two stores.
	ErrInconsistentDelete = errors.New("intelligence: inconsistent delete across stores")
)
