package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend keeps vectors in process and scores by cosine similarity.
// Used for local runs and tests.
type MemoryBackend struct {
	dim     int
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemoryBackend(dim int) *MemoryBackend {
	return &MemoryBackend{dim: dim, records: map[uuid.UUID]Record{}}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Init(context.Context) error { return nil }

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryBackend) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dim > 0 && len(r.Embedding) != m.dim {
			return fmt.Errorf("chunk %s: dimension mismatch: expected=%d got=%d", r.ChunkID, m.dim, len(r.Embedding))
		}
		m.records[r.ChunkID] = r
	}
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, vector []float32, kbIDs []uuid.UUID, topK int) ([]Hit, error) {
	allowed := make(map[uuid.UUID]bool, len(kbIDs))
	for _, id := range kbIDs {
		allowed[id] = true
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.records))
	for _, r := range m.records {
		if !allowed[r.KnowledgeBaseID] {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:         r.ChunkID,
			DocumentID:      r.DocumentID,
			KnowledgeBaseID: r.KnowledgeBaseID,
			Content:         r.Content,
			Score:           cosine(vector, r.Embedding),
		})
	}
	m.mu.RUnlock()
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ChunkID.String() < hits[j].ChunkID.String()
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryBackend) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryBackend) DeleteByKnowledgeBase(_ context.Context, kbID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.KnowledgeBaseID == kbID {
			delete(m.records, id)
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
