package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	// Distance is the metric used when the collection is created.
	Distance string
	Timeout  time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid EMBEDDING_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads QDRANT_* and EMBEDDING_DIM (default 1024).
func ResolveConfigFromEnv() (Config, error) {
	rawDim := envutil.String("QDRANT_VECTOR_DIM", envutil.String("EMBEDDING_DIM", "1024"))
	dim, err := strconv.Atoi(rawDim)
	if err != nil {
		return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: rawDim, Cause: err}
	}
	cfg := Config{
		URL:        envutil.String("QDRANT_URL", ""),
		APIKey:     envutil.String("QDRANT_API_KEY", ""),
		Collection: envutil.String("QDRANT_COLLECTION", "kb_embeddings"),
		VectorDim:  dim,
		Distance:   envutil.String("QDRANT_DISTANCE", "Cosine"),
		Timeout:    envutil.Seconds("QDRANT_TIMEOUT_SECONDS", 10*time.Second),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
