package index

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
)

var _ adapter.SimilarityIndex = (*MemoryIndex)(nil)

// MemoryIndex is a brute-force cosine index held in process memory. At the
// size of a team's incident history this is exact and sub-millisecond.
type MemoryIndex struct {
	mu      sync.RWMutex
	seq     int
	entries map[string]*entry // document id -> entry
}

type entry struct {
	doc    model.IncidentDocument
	vector []float32 // normalized
	seq    int       // insertion order, breaks score ties
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]*entry)}
}

// Upsert stores a normalized copy of vector. Re-upserting an id keeps its
// original insertion position.
func (m *MemoryIndex) Upsert(ctx context.Context, doc model.IncidentDocument, vector []float32) error {
	if doc.ID == "" {
		return fmt.Errorf("index upsert: empty id: %w", domain.ErrInvalidArgument)
	}
	if len(vector) == 0 {
		return fmt.Errorf("index upsert %s: empty vector: %w", doc.ID, domain.ErrInvalidArgument)
	}
	normalized := Normalize(vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[doc.ID]; ok {
		e.doc = doc
		e.vector = normalized
		return nil
	}
	m.seq++
	m.entries[doc.ID] = &entry{doc: doc, vector: normalized, seq: m.seq}
	return nil
}

// Query returns up to k documents by descending cosine similarity. Vectors of
// a different dimension are skipped.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]adapter.IndexMatch, error) {
	if k <= 0 || len(vector) == 0 {
		return []adapter.IndexMatch{}, nil
	}
	q := Normalize(vector)

	m.mu.RLock()
	h := &minHeap{}
	for _, e := range m.entries {
		if len(e.vector) != len(q) {
			continue
		}
		s := scored{entry: e, score: Dot(q, e.vector)}
		if h.Len() < k {
			heap.Push(h, s)
		} else if better(s, (*h)[0]) {
			(*h)[0] = s
			heap.Fix(h, 0)
		}
	}
	m.mu.RUnlock()

	out := make([]adapter.IndexMatch, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		s := heap.Pop(h).(scored)
		out[i] = adapter.IndexMatch{Document: s.entry.doc, Score: s.score}
	}
	return out, nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

type scored struct {
	entry *entry
	score float64
}

// better orders by score, then earlier insertion.
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.entry.seq < b.entry.seq
}

// minHeap keeps the worst of the current top-K at the root.
type minHeap []scored

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
