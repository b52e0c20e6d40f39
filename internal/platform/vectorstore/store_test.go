package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type failingBackend struct {
	*MemoryBackend
	initCalls int
	writes    int
}

func (f *failingBackend) Init(context.Context) error {
	f.initCalls++
	return errors.New("connection refused")
}

func (f *failingBackend) Upsert(ctx context.Context, r []Record) error {
	f.writes++
	return f.MemoryBackend.Upsert(ctx, r)
}

func TestStoreStaysUnavailableAfterFailedInit(t *testing.T) {
	b := &failingBackend{MemoryBackend: NewMemoryBackend(2)}
	s := New(logger.Nop(), b)
	if got := s.State(); got != StateUninitialized {
		t.Fatalf("initial state: want=uninitialized got=%s", got)
	}
	if got := s.Init(context.Background()); got != StateUnavailable {
		t.Fatalf("after init: want=unavailable got=%s", got)
	}
	s.Init(context.Background())
	if b.initCalls != 1 {
		t.Fatalf("init calls: want=1 got=%d", b.initCalls)
	}

	kb := uuid.New()
	if err := s.Upsert(context.Background(), []Record{{ChunkID: uuid.New(), KnowledgeBaseID: kb, Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if b.writes != 0 {
		t.Fatalf("writes while unavailable: want=0 got=%d", b.writes)
	}
	hits, err := s.Search(context.Background(), []float32{1, 0}, []uuid.UUID{kb}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Search: want empty got=%v err=%v", hits, err)
	}
	if err := s.DeleteByKnowledgeBase(context.Background(), kb); err != nil {
		t.Fatalf("DeleteByKnowledgeBase: %v", err)
	}
}

func TestMemoryStoreSearchFiltersByKnowledgeBase(t *testing.T) {
	s := New(logger.Nop(), NewMemoryBackend(2))
	if s.Init(context.Background()) != StateReady {
		t.Fatalf("memory backend should be ready")
	}
	kbA, kbB := uuid.New(), uuid.New()
	docA := uuid.New()
	near, far, other := uuid.New(), uuid.New(), uuid.New()
	err := s.Upsert(context.Background(), []Record{
		{ChunkID: near, DocumentID: docA, KnowledgeBaseID: kbA, Embedding: []float32{1, 0.1}},
		{ChunkID: far, DocumentID: docA, KnowledgeBaseID: kbA, Embedding: []float32{0, 1}},
		{ChunkID: other, DocumentID: uuid.New(), KnowledgeBaseID: kbB, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.Search(context.Background(), []float32{1, 0}, []uuid.UUID{kbA}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ChunkID != near || hits[1].ChunkID != far {
		t.Fatalf("hits: got=%+v", hits)
	}

	if err := s.DeleteByDocument(context.Background(), docA); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	hits, _ = s.Search(context.Background(), []float32{1, 0}, []uuid.UUID{kbA, kbB}, 5)
	if len(hits) != 1 || hits[0].ChunkID != other {
		t.Fatalf("after delete: got=%+v", hits)
	}
}

func TestSearchWithNoKnowledgeBasesSkipsBackend(t *testing.T) {
	s := New(logger.Nop(), NewMemoryBackend(0))
	s.Init(context.Background())
	hits, err := s.Search(context.Background(), []float32{1}, nil, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("want empty got=%v err=%v", hits, err)
	}
}
