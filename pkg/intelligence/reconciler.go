package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/logging"
	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/vector"
)

// Reconciler decides how candidate memories relate to what is already stored
// and applies those decisions to both stores.
//
// Decide issues a single temperature-0 LLM call for the whole candidate
// batch and validates the response; Execute applies one decision, keeping
// the metadata store and the vector index in step with compensation where
// the contract allows it.
type Reconciler struct {
	llm        llm.Provider
	metadata   storage.MetadataStore
	index      vector.Index
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerMaxRetries overrides the LLM retry budget.
func WithReconcilerMaxRetries(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithReconcilerBackoff overrides the sleep between attempts.
func WithReconcilerBackoff(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(logger *logging.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a reconciler over the given LLM and the two stores.
func NewReconciler(provider llm.Provider, metadata storage.MetadataStore, index vector.Index, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		llm:        provider,
		metadata:   metadata,
		index:      index,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide asks the LLM for one operation per candidate and validates the
// result. The returned slice is normalized to candidate order: candidates the
// model skipped get a NOOP, entries for unknown candidates are discarded.
func (r *Reconciler) Decide(ctx context.Context, candidates []Candidate) ([]Operation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt, err := reconcilerPrompt(candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconcilerFailure, err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			r.logger.Warn("retrying reconciliation", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		response, err := r.llm.Complete(ctx, prompt, llm.WithTemperature(0))
		if err != nil {
			lastErr = err
			continue
		}

		ops, err := r.parseOperations(response, candidates)
		if err != nil {
			lastErr = err
			continue
		}
		return ops, nil
	}

	return nil, fmt.Errorf("%w: %d attempts, last error: %v", ErrReconcilerFailure, r.maxRetries, lastErr)
}

// rawOperation is the wire shape of one decision. Pointers distinguish an
// absent field from a zero value. target_memory_id is a non-pointer
// RawMessage because json sets a *RawMessage to nil on an explicit null,
// which a pointer could not tell apart from an absent field; with a value,
// absent decodes to zero length and null to the literal "null".
type rawOperation struct {
	CandidateID *string         `json:"candidate_id"`
	Operation   *string         `json:"operation"`
	Target      json.RawMessage `json:"target_memory_id"`
	Confidence  *float64        `json:"confidence"`
}

// parseOperations validates one LLM response against the candidate batch.
// Structural problems are returned as errors so the caller retries; a
// semantically wrong target is downgraded to NOOP instead.
func (r *Reconciler) parseOperations(response string, candidates []Candidate) ([]Operation, error) {
	cleaned := stripCodeFences(response)

	var parsed struct {
		Operations *[]rawOperation `json:"operations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if parsed.Operations == nil {
		return nil, errors.New("response has no operations array")
	}

	neighborSets := make(map[string]map[string]bool, len(candidates))
	for _, cand := range candidates {
		set := make(map[string]bool, len(cand.Neighbors))
		for _, neighbor := range cand.Neighbors {
			set[neighbor.MemoryID] = true
		}
		neighborSets[cand.ID] = set
	}

	if len(*parsed.Operations) != len(candidates) {
		r.logger.Warn("operation count does not match candidate count",
			"got", len(*parsed.Operations), "want", len(candidates))
	}

	decided := make(map[string]Operation, len(candidates))
	for i, raw := range *parsed.Operations {
		if raw.CandidateID == nil || raw.Operation == nil || len(raw.Target) == 0 || raw.Confidence == nil {
			return nil, fmt.Errorf("operation %d is missing required fields", i)
		}

		action := Action(strings.ToUpper(strings.TrimSpace(*raw.Operation)))
		switch action {
		case ActionAdd, ActionUpdate, ActionDelete, ActionNoop:
		default:
			return nil, fmt.Errorf("operation %d has unknown operation %q", i, *raw.Operation)
		}

		var target string
		if string(raw.Target) != "null" {
			if err := json.Unmarshal(raw.Target, &target); err != nil {
				return nil, fmt.Errorf("operation %d: target_memory_id must be a string or null", i)
			}
		}

		neighbors, known := neighborSets[*raw.CandidateID]
		if !known {
			r.logger.Warn("discarding operation for unknown candidate", "candidate_id", *raw.CandidateID)
			continue
		}
		if _, dup := decided[*raw.CandidateID]; dup {
			continue
		}

		op := Operation{
			CandidateID:    *raw.CandidateID,
			Action:         action,
			TargetMemoryID: target,
			Confidence:     *raw.Confidence,
		}

		switch action {
		case ActionUpdate, ActionDelete:
			if target == "" || !neighbors[target] {
				r.logger.Warn("invalid_target: downgrading operation to NOOP",
					"error", ErrInvalidTarget,
					"candidate_id", op.CandidateID,
					"operation", string(action),
					"target_memory_id", target)
				op.Action = ActionNoop
				op.TargetMemoryID = ""
			}
		default:
			// ADD and NOOP carry no target; a stray value is ignored.
			op.TargetMemoryID = ""
		}

		decided[op.CandidateID] = op
	}

	ops := make([]Operation, 0, len(candidates))
	for _, cand := range candidates {
		if op, ok := decided[cand.ID]; ok {
			ops = append(ops, op)
			continue
		}
		ops = append(ops, Operation{CandidateID: cand.ID, Action: ActionNoop})
	}

	return ops, nil
}

// Execute applies one decision to both stores. The candidate is the memory
// the operation was decided for; embedding is its vector from the batch
// embed step.
func (r *Reconciler) Execute(ctx context.Context, op Operation, candidate *storage.Memory, embedding []float32) error {
	switch op.Action {
	case ActionAdd:
		return r.executeAdd(ctx, candidate, embedding)
	case ActionUpdate:
		return r.executeUpdate(ctx, op.TargetMemoryID, candidate, embedding)
	case ActionDelete:
		return r.executeDelete(ctx, op.TargetMemoryID)
	case ActionNoop:
		return nil
	default:
		return fmt.Errorf("unknown operation %q", op.Action)
	}
}

// executeAdd inserts the row first, then the vector. A failed vector insert
// triggers a best-effort delete of the row so no orphan survives.
func (r *Reconciler) executeAdd(ctx context.Context, m *storage.Memory, embedding []float32) error {
	m.Embedding = embedding
	if err := r.metadata.Insert(ctx, m); err != nil {
		return fmt.Errorf("add %s: %w", m.MemoryID, err)
	}

	if err := r.index.Insert(ctx, m.MemoryID, embedding, payloadFromMemory(m)); err != nil {
		if delErr := r.metadata.Delete(ctx, m.MemoryID); delErr != nil {
			r.logger.Error("compensating row delete failed",
				"memory_id", m.MemoryID, "error", delErr)
		}
		return fmt.Errorf("add %s: %w", m.MemoryID, err)
	}

	return nil
}

// executeUpdate reuses the target's id: the candidate overwrites the existing
// memory in place. If the vector update fails after the row was rewritten,
// the row is left as-is and the op is reported failed.
func (r *Reconciler) executeUpdate(ctx context.Context, targetID string, m *storage.Memory, embedding []float32) error {
	m.MemoryID = targetID
	m.Embedding = embedding
	if err := r.metadata.Update(ctx, m); err != nil {
		return fmt.Errorf("update %s: %w", targetID, err)
	}

	payload := payloadFromMemory(m)
	if err := r.index.Update(ctx, targetID, embedding, &payload); err != nil {
		r.logger.Error("inconsistent_update: row rewritten but vector update failed",
			"memory_id", targetID, "error", err)
		return fmt.Errorf("update %s: %w: %v", targetID, ErrInconsistentUpdate, err)
	}

	return nil
}

// executeDelete removes the memory from both stores. Both deletions are
// attempted; success requires both.
func (r *Reconciler) executeDelete(ctx context.Context, targetID string) error {
	rowErr := r.metadata.Delete(ctx, targetID)
	vecErr := r.index.Delete(ctx, targetID)

	switch {
	case rowErr == nil && vecErr == nil:
		return nil
	case rowErr != nil && vecErr != nil:
		return fmt.Errorf("delete %s: row: %v, vector: %w", targetID, rowErr, vecErr)
	default:
		oneSided := rowErr
		if oneSided == nil {
			oneSided = vecErr
		}
		r.logger.Error("inconsistent_delete: only one store dropped the memory",
			"memory_id", targetID, "error", oneSided)
		return fmt.Errorf("delete %s: %w: %v", targetID, ErrInconsistentDelete, oneSided)
	}
}

// payloadFromMemory builds the vector index payload for a memory.
func payloadFromMemory(m *storage.Memory) vector.Payload {
	return vector.Payload{
		MemoryID:  m.MemoryID,
		Content:   m.Content,
		Type:      m.Type,
		Source:    m.Source,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    m.UserID,
	}
}
