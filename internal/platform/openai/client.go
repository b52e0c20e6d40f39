package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/pkg/httpx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// Client speaks the OpenAI-compatible REST dialect (chat completions,
// embeddings, models). Most hosted vendors accept it unchanged.
type Client interface {
	Name() string
	Model() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[string, error]
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
	ListModels(ctx context.Context) ([]string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	JSON        bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   *Usage
}

type Config struct {
	// Name labels logs and metrics, e.g. "openai" or "deepseek".
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the first backoff step; it doubles per attempt.
	RetryBase  time.Duration
	HTTPClient *http.Client
}

type client struct {
	log        *logger.Logger
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai client %q: missing api key", cfg.Name)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "openai"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &client{
		log:        log.With("service", "OpenAIClient", "provider", name),
		name:       name,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}, nil
}

func (c *client) Name() string  { return c.name }
func (c *client) Model() string { return c.model }

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one request with retry on retryable statuses and transport errors.
func (c *client) do(ctx context.Context, method, path, model string, body any, out any) error {
	start := time.Now()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			in, outTok := extractUsage(raw)
			observability.Current().ObserveLLMRequest(c.name, model, endpointLabel(path), statusFromResp(resp, nil), time.Since(start), in, outTok)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			observability.Current().ObserveLLMRequest(c.name, model, endpointLabel(path), statusFromResp(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, httpx.Backoff(attempt+1, c.retryBase, 10*time.Second), 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
	}
}

// -------------------- Chat --------------------

type chatRequestBody struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (c *client) buildChatBody(req ChatRequest, stream bool) chatRequestBody {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	body := chatRequestBody{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func (c *client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := c.buildChatBody(req, false)
	var out chatResponseBody
	if err := c.do(ctx, http.MethodPost, "/chat/completions", body.Model, body, &out); err != nil {
		return ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai chat: empty choices")
	}
	model := out.Model
	if model == "" {
		model = body.Model
	}
	return ChatResponse{Content: out.Choices[0].Message.Content, Model: model, Usage: out.Usage}, nil
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

var errStreamStop = errors.New("stream stopped")

// StreamChat yields content deltas in arrival order. Breaking out of the
// range loop cancels the upstream request.
func (c *client) StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		body := c.buildChatBody(req, true)
		start := time.Now()
		httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", body)
		if err != nil {
			yield("", err)
			return
		}
		httpReq.Header.Set("Accept", "text/event-stream")
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			observability.Current().ObserveLLMRequest(c.name, body.Model, "chat.completions.stream", statusFromResp(nil, err), time.Since(start), 0, 0)
			yield("", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			err := &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
			observability.Current().ObserveLLMRequest(c.name, body.Model, "chat.completions.stream", statusFromResp(resp, err), time.Since(start), 0, 0)
			yield("", err)
			return
		}

		var emitted strings.Builder
		stopped := false
		err = streamSSE(resp.Body, func(_ string, data string) error {
			data = strings.TrimSpace(data)
			if data == "" {
				return nil
			}
			if data == "[DONE]" {
				return errStreamStop
			}
			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
				return fmt.Errorf("openai stream error: %s", string(chunk.Error))
			}
			for _, ch := range chunk.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				emitted.WriteString(ch.Delta.Content)
				if !yield(ch.Delta.Content, nil) {
					stopped = true
					return errStreamStop
				}
			}
			return nil
		})
		if errors.Is(err, errStreamStop) {
			err = nil
		}
		observability.Current().ObserveLLMRequest(c.name, body.Model, "chat.completions.stream", statusFromResp(resp, err), time.Since(start), 0, estimateTokens(emitted.String()))
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	req := embeddingsRequest{Model: model, Input: clean}
	var resp embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/embeddings", model, req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = toFloat32(d.Embedding)
		}
	}
	// Some compatible servers omit indices; fall back to positional order.
	if hasMissing(out) && len(resp.Data) == len(clean) {
		for i := range out {
			if out[i] == nil {
				out[i] = toFloat32(resp.Data[i].Embedding)
			}
		}
	}
	if hasMissing(out) {
		return nil, fmt.Errorf("openai embeddings missing indices: requested=%d returned=%d model=%s", len(clean), len(resp.Data), model)
	}
	return out, nil
}

func toFloat32(in []float64) []float32 {
	vec := make([]float32, len(in))
	for i, f := range in {
		vec[i] = float32(f)
	}
	return vec
}

func hasMissing(v [][]float32) bool {
	for i := range v {
		if len(v[i]) == 0 {
			return true
		}
	}
	return false
}

// -------------------- Models --------------------

func (c *client) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/models", "", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// -------------------- helpers --------------------

func extractUsage(raw []byte) (int, int) {
	var payload struct {
		Usage *Usage `json:"usage"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil || payload.Usage == nil {
		return 0, 0
	}
	if payload.Usage.PromptTokens == 0 && payload.Usage.CompletionTokens == 0 {
		return payload.Usage.TotalTokens, 0
	}
	return payload.Usage.PromptTokens, payload.Usage.CompletionTokens
}

func endpointLabel(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
}

func statusFromResp(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var hErr *httpError
	switch {
	case err == nil:
		return "unknown"
	case errors.As(err, &hErr):
		return strconv.Itoa(hErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func estimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4.0))
}
