package app

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/knowtree-backend/internal/modules/graphgen"
	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
)

type Config struct {
	Port           string
	LogMode        string
	ServiceName    string
	Environment    string
	Version        string
	JWTSecretKey   string
	AccessTokenTTL time.Duration
	UploadDir      string

	VectorProvider VectorProvider
	EmbeddingDim   int
	EmbeddingCache time.Duration

	RedisAddr string

	Graph            graphgen.Config
	MatchConcurrency int
}

// LoadEnvFile loads .env into the process environment. A missing file is
// not an error.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func LoadConfig() Config {
	return Config{
		Port:           envutil.String("PORT", "8080"),
		LogMode:        envutil.String("LOG_MODE", "development"),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "knowtree-backend"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AccessTokenTTL: envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
		UploadDir:      envutil.String("UPLOAD_DIR", "uploads"),

		VectorProvider: VectorProvider(strings.ToLower(envutil.String("VECTOR_STORE_PROVIDER", string(VectorProviderQdrant)))),
		EmbeddingDim:   envutil.Int("EMBEDDING_DIM", 1024),
		EmbeddingCache: envutil.Seconds("EMBEDDING_CACHE_TTL_SECONDS", 10*time.Minute),

		RedisAddr: envutil.String("REDIS_ADDR", ""),

		Graph:            graphgen.ConfigFromEnv(),
		MatchConcurrency: envutil.Int("GRAPH_MATCH_CONCURRENCY", 4),
	}
}
