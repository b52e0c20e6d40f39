package llm

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/openai"
)

// Known backends. All of them speak the OpenAI-compatible dialect.
var knownProviders = []struct {
	Name    string
	Model   string
	BaseURL string
}{
	{"openai", "gpt-4o", "https://api.openai.com/v1"},
	{"claude", "claude-3-5-sonnet-20241022", "https://api.anthropic.com/v1"},
	{"deepseek", "deepseek-chat", "https://api.deepseek.com/v1"},
	{"tongyi", "qwen-plus", "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	{"doubao", "doubao-pro-32k", "https://ark.cn-beijing.volces.com/api/v3"},
}

type ProviderInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	IsDefault bool   `json:"isDefault"`
}

// Gateway resolves providers by name and falls back to a default.
type Gateway struct {
	log         *logger.Logger
	providers   map[string]Provider
	defaultName string
}

func NewGateway(log *logger.Logger, defaultName string, providers ...Provider) *Gateway {
	g := &Gateway{
		log:       log.With("service", "LLMGateway"),
		providers: map[string]Provider{},
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		g.providers[strings.ToLower(p.Name())] = p
	}
	g.defaultName = strings.ToLower(strings.TrimSpace(defaultName))
	if _, ok := g.providers[g.defaultName]; !ok {
		names := g.names()
		if len(names) > 0 {
			g.defaultName = names[0]
		}
	}
	return g
}

// NewGatewayFromEnv registers every provider that has LLM_<NAME>_API_KEY set.
func NewGatewayFromEnv(log *logger.Logger) (*Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := envutil.Seconds("LLM_TIMEOUT_SECONDS", 180*time.Second)
	maxRetries := envutil.Int("LLM_MAX_RETRIES", 3)

	var providers []Provider
	for _, kp := range knownProviders {
		prefix := "LLM_" + strings.ToUpper(kp.Name) + "_"
		apiKey := envutil.String(prefix+"API_KEY", "")
		if apiKey == "" {
			continue
		}
		client, err := openai.New(log, openai.Config{
			Name:       kp.Name,
			BaseURL:    envutil.String(prefix+"BASE_URL", kp.BaseURL),
			APIKey:     apiKey,
			Model:      envutil.String(prefix+"MODEL", kp.Model),
			Timeout:    timeout,
			MaxRetries: maxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("init llm provider %s: %w", kp.Name, err)
		}
		providers = append(providers, NewCompatibleProvider(client))
		log.Info("LLM provider registered", "provider", kp.Name, "model", client.Model())
	}
	g := NewGateway(log, envutil.String("LLM_DEFAULT_PROVIDER", "openai"), providers...)
	if len(providers) == 0 {
		log.Warn("No LLM providers configured; generation calls will fail")
	}
	return g, nil
}

func (g *Gateway) names() []string {
	names := make([]string, 0, len(g.providers))
	for n := range g.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultName is the provider used when callers pass "".
func (g *Gateway) DefaultName() string { return g.defaultName }

// Resolve returns the named provider, or the default when name is empty.
// A name that is not registered is a configuration error.
func (g *Gateway) Resolve(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		if len(g.providers) == 0 {
			return nil, &ProviderError{Code: CodeNoProviders, Provider: g.defaultName}
		}
		name = g.defaultName
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, &ProviderError{
			Code:     CodeProviderNotConfigured,
			Provider: name,
			Cause:    fmt.Errorf("set LLM_%s_API_KEY to enable it", strings.ToUpper(name)),
		}
	}
	return p, nil
}

func (g *Gateway) Complete(ctx context.Context, provider string, messages []Message, opts Options) (Completion, error) {
	p, err := g.Resolve(provider)
	if err != nil {
		return Completion{}, err
	}
	return p.Complete(ctx, messages, opts)
}

func (g *Gateway) Stream(ctx context.Context, provider string, messages []Message, opts Options) iter.Seq2[string, error] {
	p, err := g.Resolve(provider)
	if err != nil {
		return func(yield func(string, error) bool) { yield("", err) }
	}
	return p.Stream(ctx, messages, opts)
}

func (g *Gateway) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(g.providers))
	for _, n := range g.names() {
		p := g.providers[n]
		out = append(out, ProviderInfo{Name: n, Model: p.Model(), IsDefault: n == g.defaultName})
	}
	return out
}

// HealthCheck probes every provider and returns per-provider errors.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]error {
	out := make(map[string]error, len(g.providers))
	for n, p := range g.providers {
		err := p.HealthCheck(ctx)
		if err != nil {
			g.log.Warn("LLM provider health check failed", "provider", n, "error", err)
		}
		out[n] = err
	}
	return out
}
