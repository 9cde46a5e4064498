package intelligence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/storage"
	"github.com/evermem/evermem-go/pkg/vector"
)

// scriptedLLM replays canned responses and records every call it saw.
type scriptedLLM struct {
	mu           sync.Mutex
	responses    []string
	prompts      []string
	systems      []string
	temperatures []*float64
	err          error
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	options := llm.ApplyGenerateOptions(opts)
	s.prompts = append(s.prompts, prompt)
	s.systems = append(s.systems, options.System)
	s.temperatures = append(s.temperatures, options.Temperature)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("scripted llm: no response left")
	}
	response := s.responses[0]
	s.responses = s.responses[1:]
	return response, nil
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *scriptedLLM) prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[i]
}

func (s *scriptedLLM) system(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systems[i]
}

func (s *scriptedLLM) temperature(i int) *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperatures[i]
}

// memStore is a map-backed MetadataStore with injectable failures.
type memStore struct {
	mu        sync.Mutex
	rows      map[string]*storage.Memory
	insertErr error
	updateErr error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*storage.Memory)}
}

func (s *memStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *memStore) Insert(ctx context.Context, m *storage.Memory) error {
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

func (s *memStore) Update(ctx context.Context, m *storage.Memory) error {
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

func (s *memStore) Delete(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.rows, memoryID)
	return nil
}

func (s *memStore) GetByIDs(ctx context.Context, ids []string) ([]*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Memory
	for _, id := range storage.DedupeIDs(ids) {
		if row, ok := s.rows[id]; ok {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, row := range s.rows {
		if row.UserID == userID {
			delete(s.rows, id)
			count++
		}
	}
	return count, nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) Close() error { return nil }

func (s *memStore) row(id string) *storage.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

// memIndex is a map-backed vector.Index with injectable failures. It does not
// implement similarity search; reconciler execution never searches.
type memIndex struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	payloads  map[string]vector.Payload
	insertErr error
	updateErr error
	deleteErr error
}

func newMemIndex() *memIndex {
	return &memIndex{
		vectors:  make(map[string][]float32),
		payloads: make(map[string]vector.Payload),
	}
}

func (m *memIndex) Insert(ctx context.Context, id string, vec []float32, payload vector.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.vectors[id]; exists {
		return fmt.Errorf("%w: %s", vector.ErrDuplicateID, id)
	}
	m.vectors[id] = vec
	m.payloads[id] = payload
	return nil
}

func (m *memIndex) Update(ctx context.Context, id string, vec []float32, payload *vector.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.vectors[id]; !exists {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}
	if vec != nil {
		m.vectors[id] = vec
	}
	if payload != nil {
		m.payloads[id] = *payload
	}
	return nil
}

func (m *memIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.vectors[id]; !exists {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}
	delete(m.vectors, id)
	delete(m.payloads, id)
	return nil
}

func (m *memIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]vector.SearchResult, error) {
	return nil, nil
}

func (m *memIndex) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, p := range m.payloads {
		if p.UserID == userID {
			delete(m.vectors, id)
			delete(m.payloads, id)
			count++
		}
	}
	return count, nil
}

func (m *memIndex) Ping(ctx context.Context) error { return nil }

func (m *memIndex) Close() error { return nil }

func (m *memIndex) vec(id string) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectors[id]
}

func (m *memIndex) payload(id string) (vector.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payloads[id]
	return p, ok
}
