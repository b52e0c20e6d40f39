package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/yungbote/knowtree-backend/internal/platform/openai"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

// compatibleProvider adapts an OpenAI-compatible client to Provider.
type compatibleProvider struct {
	client openai.Client
}

func NewCompatibleProvider(client openai.Client) Provider {
	return &compatibleProvider{client: client}
}

func (p *compatibleProvider) Name() string  { return p.client.Name() }
func (p *compatibleProvider) Model() string { return p.client.Model() }

func (p *compatibleProvider) request(messages []Message, opts Options) openai.ChatRequest {
	temp := opts.Temperature
	if temp == nil {
		temp = Temperature(defaultTemperature)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	msgs := make([]openai.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.Message{Role: string(m.Role), Content: m.Content})
	}
	return openai.ChatRequest{
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   maxTokens,
		JSON:        opts.ResponseFormat == FormatJSON,
	}
}

func (p *compatibleProvider) Complete(ctx context.Context, messages []Message, opts Options) (Completion, error) {
	resp, err := p.client.Chat(ctx, p.request(messages, opts))
	if err != nil {
		return Completion{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Completion{}, &ProviderError{Code: CodeEmptyResponse, Provider: p.Name()}
	}
	out := Completion{Content: resp.Content, Model: resp.Model, Provider: p.Name()}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (p *compatibleProvider) Stream(ctx context.Context, messages []Message, opts Options) iter.Seq2[string, error] {
	return p.client.StreamChat(ctx, p.request(messages, opts))
}

func (p *compatibleProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	return err
}
