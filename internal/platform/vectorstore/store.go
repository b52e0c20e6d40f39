package vectorstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// Store guards a Backend with a one-shot readiness state. Until Init succeeds
// every write is a no-op and every search returns no hits. A failed Init is
// final for the life of the process.
type Store struct {
	log      *logger.Logger
	backend  Backend
	state    atomic.Int32
	initOnce sync.Once
}

func New(log *logger.Logger, backend Backend) *Store {
	s := &Store{log: log.With("service", "VectorStore"), backend: backend}
	if backend == nil {
		s.state.Store(int32(StateUnavailable))
	}
	return s
}

// NewUnavailable builds a store that never becomes ready.
func NewUnavailable(log *logger.Logger) *Store {
	return New(log, nil)
}

// Init runs backend initialization at most once and returns the resulting state.
func (s *Store) Init(ctx context.Context) State {
	s.initOnce.Do(func() {
		if s.backend == nil {
			s.log.Warn("Vector store disabled; retrieval will use keyword search")
			observability.Current().SetVectorReady(false)
			return
		}
		if err := s.backend.Init(ctx); err != nil {
			s.state.Store(int32(StateUnavailable))
			observability.Current().SetVectorReady(false)
			s.log.Warn("Vector store init failed; falling back to keyword search", "backend", s.backend.Name(), "error", err)
			return
		}
		s.state.Store(int32(StateReady))
		observability.Current().SetVectorReady(true)
		s.log.Info("Vector store ready", "backend", s.backend.Name())
	})
	return s.State()
}

func (s *Store) State() State {
	if s == nil {
		return StateUnavailable
	}
	return State(s.state.Load())
}

func (s *Store) Ready() bool { return s.State() == StateReady }

func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if !s.Ready() || len(records) == 0 {
		return nil
	}
	return s.backend.Upsert(ctx, records)
}

func (s *Store) Search(ctx context.Context, vector []float32, kbIDs []uuid.UUID, topK int) ([]Hit, error) {
	if !s.Ready() || len(kbIDs) == 0 {
		return []Hit{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	return s.backend.Search(ctx, vector, kbIDs, topK)
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	if !s.Ready() {
		return nil
	}
	return s.backend.DeleteByDocument(ctx, documentID)
}

func (s *Store) DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error {
	if !s.Ready() {
		return nil
	}
	return s.backend.DeleteByKnowledgeBase(ctx, kbID)
}
