package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "VECTOR_STORE_PROVIDER", "ACCESS_TOKEN_TTL", "GRAPH_MAX_CHILDREN", "EMBEDDING_CACHE_TTL_SECONDS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("Port: want=8080 got=%s", cfg.Port)
	}
	if cfg.VectorProvider != VectorProviderQdrant {
		t.Fatalf("VectorProvider: want=qdrant got=%s", cfg.VectorProvider)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Fatalf("AccessTokenTTL: want=1h got=%s", cfg.AccessTokenTTL)
	}
	if cfg.Graph.MaxChildrenPerNode != 8 {
		t.Fatalf("Graph.MaxChildrenPerNode: want=8 got=%d", cfg.Graph.MaxChildrenPerNode)
	}
	if cfg.EmbeddingCache != 10*time.Minute {
		t.Fatalf("EmbeddingCache: want=10m got=%s", cfg.EmbeddingCache)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VECTOR_STORE_PROVIDER", "Memory")
	t.Setenv("GRAPH_MAX_CHILDREN", "5")
	t.Setenv("ACCESS_TOKEN_TTL", "60")

	cfg := LoadConfig()
	if cfg.Port != "9090" {
		t.Fatalf("Port: want=9090 got=%s", cfg.Port)
	}
	if cfg.VectorProvider != VectorProviderMemory {
		t.Fatalf("VectorProvider: want=memory got=%s", cfg.VectorProvider)
	}
	if cfg.Graph.MaxChildrenPerNode != 5 {
		t.Fatalf("Graph.MaxChildrenPerNode: want=5 got=%d", cfg.Graph.MaxChildrenPerNode)
	}
	if cfg.AccessTokenTTL != time.Minute {
		t.Fatalf("AccessTokenTTL: want=1m got=%s", cfg.AccessTokenTTL)
	}
}
