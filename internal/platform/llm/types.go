package llm

import (
	"context"
	"iter"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Options tune one completion. Zero values fall back to provider defaults
// (temperature 0.7, 4096 max tokens, text output).
type Options struct {
	Temperature    *float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

func Temperature(v float64) *float64 { return &v }

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type Completion struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    *Usage `json:"usage,omitempty"`
}

// Provider is one named LLM backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, messages []Message, opts Options) (Completion, error)
	// Stream yields text fragments in order. The consumer cancels by
	// breaking out of the loop.
	Stream(ctx context.Context, messages []Message, opts Options) iter.Seq2[string, error]
	HealthCheck(ctx context.Context) error
}
