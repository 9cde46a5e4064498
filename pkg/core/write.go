package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/evermem/evermem-go/pkg/intelligence"
	"github.com/evermem/evermem-go/pkg/vector"
)

const (
	// neighborK is how many nearest neighbors each candidate is compared
	// against during reconciliation.
	neighborK = 5

	// maxSearchWorkers caps the concurrent neighbor searches of one write.
	maxSearchWorkers = 10
)

// Write runs the full memory pipeline over one conversation exchange.
//
// The pipeline:
//  1. Extracts candidate memories from the turns and the latest exchange
//  2. Stamps every candidate with the user scope
//  3. Batch-embeds the candidates
//  4. Searches the top-5 neighbors of every candidate concurrently
//  5. Asks the LLM once to reconcile candidates against their neighbors
//  6. Executes the decided ADD/UPDATE/DELETE/NOOP operations
//
// The returned slice holds the memories that were actually stored or
// rewritten (ADD and UPDATE operations that executed successfully);
// NOOPs, DELETEs and failed operations are not included. A conversation
// without factual content yields an empty result and no store mutation.
//
// Extraction, embedding, neighbor search and reconciliation errors abort
// the write. Failures while executing an individual operation are logged
// and skipped so the remaining operations still apply; mutations already
// executed stay in place.
//
// Parameters:
//   - ctx: Context for cancellation
//   - turns: Recent conversation history, oldest first
//   - userMessage: The latest user message
//   - assistantMessage: The latest assistant reply
//   - opts: Optional parameters (UserID, Mode)
//
// Example:
//
//	memories, err := client.Write(ctx, history,
//	    "I moved to Bangalore last month.", "Noted!",
//	    core.WithUserID("user_001"))
func (c *Client) Write(ctx context.Context, turns []Turn, userMessage, assistantMessage string, opts ...WriteOption) ([]*Memory, error) {
	writeOpts := applyWriteOptions(opts)

	candidates, err := c.extractor.Extract(ctx, toIntelligenceTurns(turns), userMessage, assistantMessage, intelligence.Mode(writeOpts.Mode))
	if err != nil {
		return nil, NewMemoryError("Write", err)
	}
	if len(candidates) == 0 {
		c.logger.Debug("no candidate memories extracted")
		return nil, nil
	}

	if writeOpts.UserID != "" {
		for _, candidate := range candidates {
			candidate.UserID = writeOpts.UserID
		}
	}

	contents := make([]string, len(candidates))
	for i, candidate := range candidates {
		contents[i] = candidate.Content
	}
	embeddings, err := c.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, NewMemoryError("Write", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err))
	}
	if len(embeddings) != len(candidates) {
		return nil, NewMemoryError("Write", fmt.Errorf("%w: got %d embeddings for %d candidates", ErrEmbeddingFailure, len(embeddings), len(candidates)))
	}
	for i, embedding := range embeddings {
		if len(embedding) != c.dim {
			return nil, NewMemoryError("Write", fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrEmbeddingFailure, i, len(embedding), c.dim))
		}
	}

	neighbors, err := c.searchNeighbors(ctx, embeddings, writeOpts.UserID)
	if err != nil {
		return nil, NewMemoryError("Write", err)
	}

	batch := make([]intelligence.Candidate, len(candidates))
	for i, candidate := range candidates {
		batch[i] = intelligence.Candidate{
			ID:        fmt.Sprintf("temp_%d", i),
			Memory:    candidate,
			Neighbors: neighbors[i],
		}
	}

	operations, err := c.reconciler.Decide(ctx, batch)
	if err != nil {
		return nil, NewMemoryError("Write", err)
	}

	indexByID := make(map[string]int, len(batch))
	for i := range batch {
		indexByID[batch[i].ID] = i
	}

	var stored []*Memory
	for _, op := range operations {
		i, known := indexByID[op.CandidateID]
		if !known {
			continue
		}
		if err := c.reconciler.Execute(ctx, op, batch[i].Memory, embeddings[i]); err != nil {
			c.logger.Error("memory operation failed",
				"candidate_id", op.CandidateID,
				"operation", string(op.Action),
				"error", err)
			continue
		}
		switch op.Action {
		case intelligence.ActionAdd, intelligence.ActionUpdate:
			stored = append(stored, fromStorageMemory(batch[i].Memory))
		}
	}

	c.logger.Debug("write finished",
		"candidates", len(batch),
		"operations", len(operations),
		"stored", len(stored))
	return stored, nil
}

// searchNeighbors looks up the top-K neighbors of every embedding
// concurrently, scoped to userID when one is set. Results are returned in
// candidate order; the first failed search cancels the rest and fails the
// lookup.
func (c *Client) searchNeighbors(ctx context.Context, embeddings [][]float32, userID string) ([][]vector.Payload, error) {
	var filter map[string]string
	if userID != "" {
		filter = map[string]string{"user_id": userID}
	}

	limit := len(embeddings)
	if limit > maxSearchWorkers {
		limit = maxSearchWorkers
	}

	neighbors := make([][]vector.Payload, len(embeddings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range embeddings {
		i := i
		g.Go(func() error {
			hits, err := c.index.Search(gctx, embeddings[i], neighborK, filter)
			if err != nil {
				return fmt.Errorf("neighbor search for candidate %d: %w", i, err)
			}
			payloads := make([]vector.Payload, len(hits))
			for j, hit := range hits {
				payloads[j] = hit.Payload
			}
			neighbors[i] = payloads
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return neighbors, nil
}
