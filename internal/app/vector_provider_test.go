package app

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/qdrant"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

func stubQdrant(t *testing.T, cfgErr error, backend vectorstore.Backend, newErr error) *qdrant.Config {
	t.Helper()
	origNew := newQdrantBackend
	origResolve := resolveQdrantConfigFromEnv
	t.Cleanup(func() {
		newQdrantBackend = origNew
		resolveQdrantConfigFromEnv = origResolve
	})
	var captured qdrant.Config
	resolveQdrantConfigFromEnv = func() (qdrant.Config, error) {
		if cfgErr != nil {
			return qdrant.Config{}, cfgErr
		}
		return qdrant.Config{URL: "http://qdrant:6333", Collection: "kb_embeddings", VectorDim: 3}, nil
	}
	newQdrantBackend = func(_ *logger.Logger, cfg qdrant.Config) (vectorstore.Backend, error) {
		captured = cfg
		return backend, newErr
	}
	return &captured
}

func TestResolveVectorBackendQdrantSelected(t *testing.T) {
	stub := &fakeBackend{name: "qdrant"}
	captured := stubQdrant(t, nil, stub, nil)

	backend, err := resolveVectorBackend(logger.Nop(), Config{VectorProvider: VectorProviderQdrant})
	if err != nil {
		t.Fatalf("resolveVectorBackend: %v", err)
	}
	if backend == nil {
		t.Fatalf("backend: expected non-nil")
	}
	if err := backend.Upsert(context.Background(), []vectorstore.Record{{ChunkID: uuid.New()}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stub.upserts != 1 {
		t.Fatalf("underlying backend not called: upserts=%d", stub.upserts)
	}
	if captured.URL != "http://qdrant:6333" {
		t.Fatalf("qdrant.URL: want=%q got=%q", "http://qdrant:6333", captured.URL)
	}
}

func TestResolveVectorBackendMemoryAndNone(t *testing.T) {
	backend, err := resolveVectorBackend(logger.Nop(), Config{VectorProvider: VectorProviderMemory, EmbeddingDim: 3})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if backend == nil || backend.Name() != "memory" {
		t.Fatalf("memory backend: got=%v", backend)
	}

	backend, err = resolveVectorBackend(logger.Nop(), Config{VectorProvider: VectorProviderNone})
	if err != nil || backend != nil {
		t.Fatalf("none: want nil backend and nil error, got backend=%v err=%v", backend, err)
	}
}

func TestResolveVectorBackendClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		cfgErr error
		newErr error
		want   VectorProviderBootstrapErrorCode
	}{
		{"missing url", &qdrant.ConfigError{Code: qdrant.ConfigErrorMissingURL}, nil, VectorProviderBootstrapErrorMissingQdrantURL},
		{"invalid url", &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidURL, Value: "::"}, nil, VectorProviderBootstrapErrorInvalidQdrantURL},
		{"invalid dim", &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidVectorDim, Value: "x"}, nil, VectorProviderBootstrapErrorInvalidDim},
		{"unreachable", nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, VectorProviderBootstrapErrorUnreachable},
		{"other", nil, errors.New("boom"), VectorProviderBootstrapErrorInitFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stubQdrant(t, tc.cfgErr, nil, tc.newErr)
			_, err := resolveVectorBackend(logger.Nop(), Config{VectorProvider: VectorProviderQdrant})
			var bootErr *VectorProviderBootstrapError
			if !errors.As(err, &bootErr) {
				t.Fatalf("expected VectorProviderBootstrapError, got=%v", err)
			}
			if bootErr.Code != tc.want {
				t.Fatalf("code: want=%s got=%s", tc.want, bootErr.Code)
			}
			if bootErr.Provider != VectorProviderQdrant {
				t.Fatalf("provider: want=%s got=%s", VectorProviderQdrant, bootErr.Provider)
			}
		})
	}
}

func TestResolveVectorBackendUnknownProvider(t *testing.T) {
	_, err := resolveVectorBackend(logger.Nop(), Config{VectorProvider: "pinecone"})
	var bootErr *VectorProviderBootstrapError
	if !errors.As(err, &bootErr) || bootErr.Code != VectorProviderBootstrapErrorUnknownProvider {
		t.Fatalf("expected unknown_provider, got=%v", err)
	}
}

func TestOpenVectorStoreDegradesOnBootstrapFailure(t *testing.T) {
	stubQdrant(t, &qdrant.ConfigError{Code: qdrant.ConfigErrorMissingURL}, nil, nil)
	store := openVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: VectorProviderQdrant})
	if store == nil {
		t.Fatalf("store: expected non-nil")
	}
	if store.Ready() {
		t.Fatalf("store: expected unavailable")
	}
	hits, err := store.Search(context.Background(), []float32{1}, []uuid.UUID{uuid.New()}, 3)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Search: want no hits and no error, got hits=%d err=%v", len(hits), err)
	}
}

func TestOpenVectorStoreReadyWithMemory(t *testing.T) {
	store := openVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: VectorProviderMemory, EmbeddingDim: 2})
	if !store.Ready() {
		t.Fatalf("store: expected ready")
	}
}

type fakeBackend struct {
	name    string
	initErr error
	delErr  error
	inits   int
	upserts int
	deletes int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Init(context.Context) error {
	f.inits++
	return f.initErr
}

func (f *fakeBackend) Upsert(context.Context, []vectorstore.Record) error {
	f.upserts++
	return nil
}

func (f *fakeBackend) Search(context.Context, []float32, []uuid.UUID, int) ([]vectorstore.Hit, error) {
	return []vectorstore.Hit{{ChunkID: uuid.New(), Score: 0.9}}, nil
}

func (f *fakeBackend) DeleteByDocument(context.Context, uuid.UUID) error {
	f.deletes++
	return f.delErr
}

func (f *fakeBackend) DeleteByKnowledgeBase(context.Context, uuid.UUID) error {
	f.deletes++
	return f.delErr
}
