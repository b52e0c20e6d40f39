package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Record is one embedded chunk as stored at the backend.
type Record struct {
	ChunkID         uuid.UUID
	DocumentID      uuid.UUID
	KnowledgeBaseID uuid.UUID
	Content         string
	Embedding       []float32
}

type Hit struct {
	ChunkID         uuid.UUID
	DocumentID      uuid.UUID
	KnowledgeBaseID uuid.UUID
	Content         string
	Score           float64
}

// Backend is a concrete vector database.
type Backend interface {
	Name() string
	// Init connects and ensures the collection exists with the expected schema.
	Init(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, kbIDs []uuid.UUID, topK int) ([]Hit, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error
}

var ErrNotReady = errors.New("vector store not ready")
