package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/knowtree-backend/internal/http/response"
	"github.com/yungbote/knowtree-backend/internal/platform/llm"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// LLMGateway is satisfied by *llm.Gateway.
type LLMGateway interface {
	Providers() []llm.ProviderInfo
	DefaultName() string
	HealthCheck(ctx context.Context) map[string]error
	Stream(ctx context.Context, provider string, messages []llm.Message, opts llm.Options) iter.Seq2[string, error]
}

type LLMHandler struct {
	log     *logger.Logger
	gateway LLMGateway
}

func NewLLMHandler(log *logger.Logger, gateway LLMGateway) *LLMHandler {
	return &LLMHandler{log: log.With("handler", "LLMHandler"), gateway: gateway}
}

func (h *LLMHandler) Providers(c *gin.Context) {
	response.RespondOK(c, gin.H{"providers": h.gateway.Providers(), "default": h.gateway.DefaultName()})
}

func (h *LLMHandler) Health(c *gin.Context) {
	results := h.gateway.HealthCheck(c.Request.Context())
	out := make(map[string]string, len(results))
	healthy := true
	for name, err := range results {
		if err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"providers": out})
}

type completeRequest struct {
	Provider    string        `json:"provider"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature"`
	MaxTokens   int           `json:"maxTokens"`
}

// CompleteStream relays fragments as "delta" events and ends with "done" or
// "error". A client disconnect stops reading from the provider.
func (h *LLMHandler) CompleteStream(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Messages) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("messages are required"))
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("streaming unsupported"))
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request.Context()
	opts := llm.Options{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	for fragment, err := range h.gateway.Stream(ctx, req.Provider, req.Messages, opts) {
		if err != nil {
			h.log.Warn("LLM stream failed", "provider", req.Provider, "error", err)
			writeSSE(w, "error", gin.H{"message": err.Error()})
			flusher.Flush()
			return
		}
		if ctx.Err() != nil {
			return
		}
		writeSSE(w, "delta", gin.H{"content": fragment})
		flusher.Flush()
	}
	writeSSE(w, "done", gin.H{})
	flusher.Flush()
}

func writeSSE(w gin.ResponseWriter, event string, data any) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, mustJSON(data))
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
