package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/logging"
	"github.com/evermem/evermem-go/pkg/storage"
)

const (
	// defaultMaxRetries bounds LLM attempts for both pipeline stages.
	defaultMaxRetries = 3

	// defaultBackoff is the fixed sleep between attempts, long enough to
	// ride out transient rate limits.
	defaultBackoff = 5 * time.Second

	// defaultSource is stamped on extracted items whose source field came
	// back empty.
	defaultSource = "conversation"
)

// Extractor distills candidate memories from a conversation using an LLM.
//
// The model is asked for a strict JSON object with a "memories" array; the
// extractor validates the shape, retries on malformed output, and turns each
// item into a storage.Memory with a fresh id and the current timestamp.
//
// Example usage:
//
//	extractor := NewExtractor(llmProvider)
//	memories, err := extractor.Extract(ctx, turns, userMsg, assistantMsg, ModeUser)
type Extractor struct {
	llm        llm.Provider
	newID      func() string
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorMaxRetries overrides the LLM retry budget.
func WithExtractorMaxRetries(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithExtractorBackoff overrides the sleep between attempts.
func WithExtractorBackoff(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.backoff = d
		}
	}
}

// WithExtractorIDGenerator overrides how fresh memory ids are minted.
func WithExtractorIDGenerator(fn func() string) ExtractorOption {
	return func(e *Extractor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *logging.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an extractor backed by the given LLM provider.
func NewExtractor(provider llm.Provider, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		llm:        provider,
		newID:      uuid.NewString,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract turns the recent history plus the current exchange into candidate
// memories. mode selects whose messages are mined; ModeBoth issues one LLM
// call per side and merges the results.
//
// An empty result is a normal outcome, not an error: small talk carries no
// facts worth keeping.
func (e *Extractor) Extract(ctx context.Context, turns []Turn, userMessage, assistantMessage string, mode Mode) ([]*storage.Memory, error) {
	userPrompt := fmt.Sprintf("Input:\n%s", renderTranscript(turns, userMessage, assistantMessage))

	switch mode {
	case ModeUser:
		return e.extractWithPrompt(ctx, userExtractionPrompt(), userPrompt)
	case ModeAgent:
		return e.extractWithPrompt(ctx, agentExtractionPrompt(), userPrompt)
	case ModeBoth:
		userMemories, err := e.extractWithPrompt(ctx, userExtractionPrompt(), userPrompt)
		if err != nil {
			return nil, err
		}
		agentMemories, err := e.extractWithPrompt(ctx, agentExtractionPrompt(), userPrompt)
		if err != nil {
			return nil, err
		}
		return append(userMemories, agentMemories...), nil
	default:
		return nil, fmt.Errorf("%w: unknown extraction mode %q", ErrExtractionFailure, mode)
	}
}

// extractWithPrompt runs one extraction call with retries. Both transport
// errors and malformed responses consume an attempt.
func (e *Extractor) extractWithPrompt(ctx context.Context, systemPrompt, userPrompt string) ([]*storage.Memory, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if attempt > 1 {
			e.logger.Warn("retrying memory extraction", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.backoff):
			}
		}

		response, err := e.llm.Complete(ctx, userPrompt, llm.WithSystem(systemPrompt))
		if err != nil {
			lastErr = err
			continue
		}

		memories, err := e.parseResponse(response)
		if err != nil {
			lastErr = err
			continue
		}
		return memories, nil
	}

	return nil, fmt.Errorf("%w: %d attempts, last error: %v", ErrExtractionFailure, e.maxRetries, lastErr)
}

// extractedItem is the wire shape of one entry in the extraction response.
type extractedItem struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// parseResponse validates the extraction response and materializes memories.
// The memories key must be present and hold an array; an empty array is valid.
func (e *Extractor) parseResponse(response string) ([]*storage.Memory, error) {
	cleaned := stripCodeFences(response)

	var parsed struct {
		Memories *[]extractedItem `json:"memories"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if parsed.Memories == nil {
		return nil, errors.New("response has no memories array")
	}

	now := time.Now().UTC()
	memories := make([]*storage.Memory, 0, len(*parsed.Memories))
	for _, item := range *parsed.Memories {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		source := item.Source
		if source == "" {
			source = defaultSource
		}
		memories = append(memories, &storage.Memory{
			MemoryID:  e.newID(),
			Source:    source,
			Content:   item.Content,
			Type:      item.Type,
			Timestamp: now,
		})
	}

	return memories, nil
}
