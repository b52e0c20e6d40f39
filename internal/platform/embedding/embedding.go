package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/openai"
)

// Embedder turns texts into fixed-dimension vectors, preserving order and count.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Model       string
	BatchSize   int
	Concurrency int
}

type service struct {
	log    *logger.Logger
	client openai.Client
	cfg    Config
}

func New(log *logger.Logger, client openai.Client, cfg Config) (Embedder, error) {
	if log == nil || client == nil {
		return nil, fmt.Errorf("embedding: missing deps")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &service{log: log.With("service", "Embedding"), client: client, cfg: cfg}, nil
}

// NewFromEnv reads EMBEDDING_* and falls back to the openai LLM credentials.
// It returns nil, nil when no key is configured.
func NewFromEnv(log *logger.Logger) (Embedder, error) {
	apiKey := envutil.String("EMBEDDING_API_KEY", envutil.String("LLM_OPENAI_API_KEY", ""))
	if apiKey == "" {
		log.Warn("Embedding API key not configured; vector indexing disabled")
		return nil, nil
	}
	client, err := openai.New(log, openai.Config{
		Name:       "embedding",
		BaseURL:    envutil.String("EMBEDDING_BASE_URL", envutil.String("LLM_OPENAI_BASE_URL", "https://api.openai.com/v1")),
		APIKey:     apiKey,
		Timeout:    envutil.Seconds("EMBEDDING_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries: envutil.Int("EMBEDDING_MAX_RETRIES", 3),
	})
	if err != nil {
		return nil, err
	}
	return New(log, client, Config{
		Model:       envutil.String("EMBEDDING_MODEL", "text-embedding-3-small"),
		BatchSize:   envutil.Int("EMBEDDING_BATCH_SIZE", 20),
		Concurrency: envutil.Int("EMBEDDING_CONCURRENCY", 2),
	})
}

func (s *service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := s.client.Embed(gctx, s.cfg.Model, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch [%d:%d]: got %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
