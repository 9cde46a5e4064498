package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/intelligence"
	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/logging"
	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/vector"
	"github.com/evermem/evermem-go/pkg/vector/flat"
)

// testDim is the vector dimension used by the pipeline tests.
const testDim = 4

// fakeLLM replays scripted responses in order and records every prompt.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fake llm: no scripted response left")
	}
	response := f.responses[0]
	f.responses = f.responses[1:]
	return response, nil
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeLLM) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

// fakeEmbedder returns vectors from a fixed text-to-vector table.
type fakeEmbedder struct {
	dim           int
	vectors       map[string][]float32
	embedErr      error
	batchErr      error
	batchOverride [][]float32
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{dim: testDim, vectors: vectors}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("fake embedder: no vector for %q", text)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.batchOverride != nil {
		return f.batchOverride, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

func (f *fakeEmbedder) Close() error { return nil }

// fakeStore is an in-memory MetadataStore with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*storage.Memory
	insertErr error
	updateErr error
	getErr    error
	forgetErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*storage.Memory)}
}

func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) Insert(ctx context.Context, m *storage.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.rows[m.MemoryID]; exists {
		return storage.ErrDuplicateID
	}
	clone := *m
	s.rows[m.MemoryID] = &clone
	return nil
}

func (s *fakeStore) Update(ctx context.Context, m *storage.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, exists := s.rows[m.MemoryID]; !exists {
		return storage.ErrNotFound
	}
	clone := *m
	s.rows[m.MemoryID] = &clone
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, memoryID)
	return nil
}

func (s *fakeStore) GetByIDs(ctx context.Context, ids []string) ([]*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []*storage.Memory
	for _, id := range storage.DedupeIDs(ids) {
		if row, ok := s.rows[id]; ok {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forgetErr != nil {
		return 0, s.forgetErr
	}
	count := 0
	for id, row := range s.rows {
		if row.UserID == userID {
			delete(s.rows, id)
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) row(id string) *storage.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeIndex satisfies vector.Index for failure injection; tests that need
// real search behavior use a flat index instead.
type fakeIndex struct {
	searchErr    error
	deleteAllErr error
	pingErr      error
}

func (f *fakeIndex) Insert(ctx context.Context, id string, vec []float32, payload vector.Payload) error {
	return nil
}

func (f *fakeIndex) Update(ctx context.Context, id string, vec []float32, payload *vector.Payload) error {
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]vector.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return nil, nil
}

func (f *fakeIndex) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	if f.deleteAllErr != nil {
		return 0, f.deleteAllErr
	}
	return 0, nil
}

func (f *fakeIndex) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeIndex) Close() error { return nil }

// newFlatIndex builds a real flat index persisted under the test tempdir.
func newFlatIndex(t *testing.T) *flat.Index {
	t.Helper()
	index, err := flat.New(&flat.Config{
		Dimension: testDim,
		IndexPath: filepath.Join(t.TempDir(), "memory_index"),
		Metric:    vector.MetricL2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

// newTestClient wires a Client from fakes, with fast retries and sequential
// memory ids (mem_1, mem_2, ...).
func newTestClient(t *testing.T, llmFake *fakeLLM, emb *fakeEmbedder, store storage.MetadataStore, index vector.Index) *Client {
	t.Helper()
	logger := logging.Nop()
	nextID := 0
	extractor := intelligence.NewExtractor(llmFake,
		intelligence.WithExtractorIDGenerator(func() string {
			nextID++
			return fmt.Sprintf("mem_%d", nextID)
		}),
		intelligence.WithExtractorMaxRetries(2),
		intelligence.WithExtractorBackoff(time.Millisecond),
		intelligence.WithExtractorLogger(logger),
	)
	reconciler := intelligence.NewReconciler(llmFake, store, index,
		intelligence.WithReconcilerMaxRetries(2),
		intelligence.WithReconcilerBackoff(time.Millisecond),
		intelligence.WithReconcilerLogger(logger),
	)
	return &Client{
		metadata:   store,
		index:      index,
		llm:        llmFake,
		embedder:   emb,
		extractor:  extractor,
		reconciler: reconciler,
		dim:        emb.dim,
		logger:     logger,
	}
}

// seedMemory inserts an existing memory into both stores.
func seedMemory(t *testing.T, store storage.MetadataStore, index vector.Index, m *storage.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, m))
	require.NoError(t, index.Insert(ctx, m.MemoryID, m.Embedding, vector.Payload{
		MemoryID:  m.MemoryID,
		Content:   m.Content,
		Type:      m.Type,
		Source:    m.Source,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    m.UserID,
	}))
}
