// Package flat implements vector.Index with an exact-scan in-process index.
//
// Vectors live in an append-only slot table. Updating a vector re-inserts it
// at a fresh slot and deleting an id only unlinks it from the id maps, so the
// slot table can grow beyond the live-id count until the operator rebuilds
// the index. State is persisted after every mutation: the vector blob at the
// configured path and a JSON side-table next to it.
package flat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/evermem/evermem-go/pkg/vector"
)

// DefaultIndexPath is used when the configuration leaves the path empty.
const DefaultIndexPath = "./memory_index"

// Config carries the flat index settings.
type Config struct {
	// Dimension is the vector dimension D. Required.
	Dimension int

	// IndexPath is where the vector blob is persisted. The payload
	// side-table is stored at IndexPath + ".payloads".
	IndexPath string

	// Metric selects the similarity metric. Defaults to L2.
	Metric vector.Metric
}

// Index is a flat exact-scan vector index.
//
// A single RWMutex serializes mutations (including persistence) while
// allowing concurrent searches.
type Index struct {
	mu sync.RWMutex

	dim    int
	metric vector.Metric
	path   string

	vectors  [][]float32
	payloads map[string]vector.Payload
	idToSlot map[string]int
	slotToID map[int]string
	nextSlot int
}

// New creates a flat index, reloading any previously persisted state from
// the configured path.
func New(cfg *Config) (*Index, error) {
	if cfg == nil || cfg.Dimension <= 0 {
		return nil, errors.New("flat: dimension must be positive")
	}
	metric := cfg.Metric
	if metric == "" {
		metric = vector.MetricL2
	}
	path := cfg.IndexPath
	if path == "" {
		path = DefaultIndexPath
	}

	idx := &Index{
		dim:      cfg.Dimension,
		metric:   metric,
		path:     path,
		vectors:  make([][]float32, 0),
		payloads: make(map[string]vector.Payload),
		idToSlot: make(map[string]int),
		slotToID: make(map[int]string),
	}
	if err := idx.load(); err != nil {
		return nil, fmt.Errorf("flat: load index: %w", err)
	}
	return idx, nil
}

// Insert adds a fresh id. Duplicate ids and wrong dimensions are rejected.
func (idx *Index) Insert(ctx context.Context, id string, vec []float32, payload vector.Payload) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.idToSlot[id]; ok {
		return fmt.Errorf("%w: %s", vector.ErrDuplicateID, id)
	}
	v, err := idx.prepare(vec)
	if err != nil {
		return err
	}

	slot := idx.nextSlot
	idx.vectors = append(idx.vectors, v)
	idx.nextSlot++
	idx.idToSlot[id] = slot
	idx.slotToID[slot] = id
	idx.payloads[id] = payload

	return idx.save()
}

// Update replaces the vector and/or payload of an existing id. The vector
// update is a remove+add on a fresh slot; the id stays stable externally.
func (idx *Index) Update(ctx context.Context, id string, vec []float32, payload *vector.Payload) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.idToSlot[id]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}

	if vec != nil {
		v, err := idx.prepare(vec)
		if err != nil {
			return err
		}
		delete(idx.slotToID, slot)
		fresh := idx.nextSlot
		idx.vectors = append(idx.vectors, v)
		idx.nextSlot++
		idx.idToSlot[id] = fresh
		idx.slotToID[fresh] = id
	}
	if payload != nil {
		idx.payloads[id] = *payload
	}

	return idx.save()
}

// Delete unlinks an id from the index. The orphaned slot stays in the blob.
func (idx *Index) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.idToSlot[id]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}
	delete(idx.idToSlot, id)
	delete(idx.slotToID, slot)
	delete(idx.payloads, id)

	return idx.save()
}

// Search scans all live slots and returns at most k hits sorted by
// decreasing score, ties broken by insertion order. The filter is a
// conjunction of payload equality predicates; the `type` key is ignored.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]vector.SearchResult, error) {
	if k <= 0 {
		return nil, errors.New("flat: k must be positive")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", vector.ErrDimensionMismatch, len(query), idx.dim)
	}
	q := query
	if idx.metric == vector.MetricCosine {
		q = normalize(query)
	}

	results := make([]vector.SearchResult, 0, k)
	for slot := 0; slot < idx.nextSlot; slot++ {
		id, ok := idx.slotToID[slot]
		if !ok {
			continue
		}
		payload := idx.payloads[id]
		if !matchesFilter(payload, filter) {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:      id,
			Score:   idx.score(q, idx.vectors[slot]),
			Payload: payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteAllForUser unlinks every entry whose payload user_id equals userID
// and returns the number removed. A single save follows the batch.
func (idx *Index) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := make([]string, 0)
	for id, p := range idx.payloads {
		if p.UserID == userID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	for _, id := range ids {
		slot := idx.idToSlot[id]
		delete(idx.idToSlot, id)
		delete(idx.slotToID, slot)
		delete(idx.payloads, id)
	}

	return len(ids), idx.save()
}

// Ping reports whether the index is initialized with a usable dimension.
func (idx *Index) Ping(ctx context.Context) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dim <= 0 || idx.payloads == nil {
		return errors.New("flat: index not initialized")
	}
	return nil
}

// Close releases the index. State is already persisted after each mutation.
func (idx *Index) Close() error {
	return nil
}

// Len returns the number of live ids.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToSlot)
}

// prepare validates the dimension and returns the copy that will be stored,
// normalized when the metric is cosine. Callers hold the write lock.
func (idx *Index) prepare(vec []float32) ([]float32, error) {
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("%w: vector has dimension %d, index has %d", vector.ErrDimensionMismatch, len(vec), idx.dim)
	}
	if idx.metric == vector.MetricCosine {
		return normalize(vec), nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (idx *Index) score(q, v []float32) float64 {
	switch idx.metric {
	case vector.MetricIP:
		return dot(q, v)
	case vector.MetricCosine:
		s := dot(q, v)
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		return s
	default:
		return 1.0 / (1.0 + euclidean(q, v))
	}
}

func matchesFilter(p vector.Payload, filter map[string]string) bool {
	for key, want := range filter {
		if key == "type" {
			continue
		}
		got, ok := p.Field(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func euclidean(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
