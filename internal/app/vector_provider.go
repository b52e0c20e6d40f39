package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/qdrant"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

type VectorProvider string

const (
	VectorProviderQdrant VectorProvider = "qdrant"
	VectorProviderMemory VectorProvider = "memory"
	VectorProviderNone   VectorProvider = "none"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorUnknownProvider  VectorProviderBootstrapErrorCode = "unknown_provider"
	VectorProviderBootstrapErrorMissingQdrantURL VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorInvalidDim       VectorProviderBootstrapErrorCode = "invalid_vector_dim"
	VectorProviderBootstrapErrorUnreachable      VectorProviderBootstrapErrorCode = "qdrant_unreachable"
	VectorProviderBootstrapErrorInitFailed       VectorProviderBootstrapErrorCode = "qdrant_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	if e.Cause == nil {
		return fmt.Sprintf("vector provider bootstrap failed (provider=%s code=%s)", e.Provider, e.Code)
	}
	return fmt.Sprintf("vector provider bootstrap failed (provider=%s code=%s): %v", e.Provider, e.Code, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

var (
	newQdrantBackend           = qdrant.New
	resolveQdrantConfigFromEnv = qdrant.ResolveConfigFromEnv
)

// resolveVectorBackend picks the backend for cfg.VectorProvider. A nil
// backend with a nil error means vector search is switched off.
func resolveVectorBackend(log *logger.Logger, cfg Config) (vectorstore.Backend, error) {
	switch cfg.VectorProvider {
	case VectorProviderNone:
		return nil, nil
	case VectorProviderMemory:
		return instrumentBackend(vectorstore.NewMemoryBackend(cfg.EmbeddingDim)), nil
	case VectorProviderQdrant, "":
		qcfg, err := resolveQdrantConfigFromEnv()
		if err != nil {
			return nil, classifyVectorProviderError(VectorProviderQdrant, err)
		}
		backend, err := newQdrantBackend(log, qcfg)
		if err != nil {
			return nil, classifyVectorProviderError(VectorProviderQdrant, err)
		}
		return instrumentBackend(backend), nil
	default:
		return nil, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorUnknownProvider,
			Provider: cfg.VectorProvider,
			Cause:    fmt.Errorf("VECTOR_STORE_PROVIDER=%q; expected qdrant, memory or none", cfg.VectorProvider),
		}
	}
}

func classifyVectorProviderError(provider VectorProvider, err error) error {
	if err == nil {
		return nil
	}
	code := VectorProviderBootstrapErrorInitFailed
	var cfgErr *qdrant.ConfigError
	var netErr net.Error
	switch {
	case errors.As(err, &cfgErr):
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidDim
		}
	case errors.As(err, &netErr):
		code = VectorProviderBootstrapErrorUnreachable
	}
	return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
}

// openVectorStore resolves the backend and initializes the store. Any
// failure leaves an unavailable store so retrieval degrades to keyword search.
func openVectorStore(ctx context.Context, log *logger.Logger, cfg Config) *vectorstore.Store {
	backend, err := resolveVectorBackend(log, cfg)
	if err != nil {
		log.Warn("vector provider bootstrap failed", "error", err)
	}
	store := vectorstore.New(log, backend)
	store.Init(ctx)
	return store
}
