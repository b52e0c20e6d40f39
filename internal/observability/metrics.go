package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	workflowRuns    *CounterVec
	workflowStage   *HistogramVec
	workflowRetries *CounterVec

	retrievals     *CounterVec
	ingestions     *CounterVec
	vectorReady    *Gauge
	vectorOps      *CounterVec
	vectorLatency  *HistogramVec
	reindexedChunk *CounterVec

	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initMu   sync.Mutex
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is nil-safe.
func Current() *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initMu.Lock()
	defer initMu.Unlock()
	if instance == nil {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	}
	return instance
}

// SetForTest swaps the process metrics and returns a restore func.
func SetForTest(m *Metrics) func() {
	initMu.Lock()
	prev := instance
	instance = m
	initMu.Unlock()
	return func() {
		initMu.Lock()
		instance = prev
		initMu.Unlock()
	}
}

func NewMetrics() *Metrics { return newMetrics() }

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	slow := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	return &Metrics{
		apiRequests: NewCounterVec("kt_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("kt_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("kt_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("kt_llm_requests_total", "LLM requests by provider/model/endpoint/status.", []string{"provider", "model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec("kt_llm_request_duration_seconds", "LLM request latency in seconds.", []string{"provider", "endpoint"}, slow),
		llmTokens:   NewCounterVec("kt_llm_tokens_total", "LLM tokens by provider/kind.", []string{"provider", "kind"}),

		workflowRuns:    NewCounterVec("kt_graph_workflow_runs_total", "Graph generation runs by mode/outcome.", []string{"mode", "outcome"}),
		workflowStage:   NewHistogramVec("kt_graph_workflow_stage_duration_seconds", "Graph generation stage latency.", []string{"step", "status"}, slow),
		workflowRetries: NewCounterVec("kt_graph_workflow_retries_total", "Tree generation retries by reason.", []string{"reason"}),

		retrievals:     NewCounterVec("kt_retrieval_requests_total", "Retrieval calls by path.", []string{"mode"}),
		ingestions:     NewCounterVec("kt_ingest_documents_total", "Document ingestion outcomes.", []string{"file_type", "status"}),
		vectorReady:    NewGauge("kt_vector_store_ready", "1 when the vector store initialized successfully."),
		vectorOps:      NewCounterVec("kt_vector_store_operations_total", "Vector store calls by backend/operation/status.", []string{"backend", "operation", "status"}),
		vectorLatency:  NewHistogramVec("kt_vector_store_operation_duration_seconds", "Vector store call latency.", []string{"backend", "operation"}, latency),
		reindexedChunk: NewCounterVec("kt_reindex_chunks_total", "Chunks re-embedded by reindex runs.", []string{"status"}),

		redisUp:   NewGauge("kt_redis_up", "Redis reachability."),
		redisPing: NewGauge("kt_redis_ping_seconds", "Redis ping latency."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	type writer interface{ WritePrometheus(io.Writer) error }
	for _, c := range []writer{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.workflowRuns, m.workflowStage, m.workflowRetries,
		m.retrievals, m.ingestions, m.vectorReady, m.vectorOps, m.vectorLatency, m.reindexedChunk,
		m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveLLMRequest(provider, model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	m.llmRequests.Inc(provider, strings.TrimSpace(model), endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), provider, endpoint)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), provider, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), provider, "output")
	}
}

func (m *Metrics) ObserveWorkflowRun(mode, outcome string) {
	if m == nil {
		return
	}
	m.workflowRuns.Inc(mode, outcome)
}

func (m *Metrics) ObserveWorkflowStage(step, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.workflowStage.Observe(dur.Seconds(), step, status)
}

func (m *Metrics) IncWorkflowRetry(reason string) {
	if m == nil {
		return
	}
	m.workflowRetries.Inc(reason)
}

func (m *Metrics) IncRetrieval(mode string) {
	if m == nil {
		return
	}
	m.retrievals.Inc(mode)
}

func (m *Metrics) RetrievalCount(mode string) float64 {
	if m == nil {
		return 0
	}
	return m.retrievals.Value(mode)
}

func (m *Metrics) IncIngestion(fileType, status string) {
	if m == nil {
		return
	}
	m.ingestions.Inc(fileType, status)
}

func (m *Metrics) SetVectorReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.vectorReady.Set(1)
		return
	}
	m.vectorReady.Set(0)
}

func (m *Metrics) ObserveVectorStoreOperation(backend, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(backend, operation, status)
	m.vectorLatency.Observe(dur.Seconds(), backend, operation)
}

func (m *Metrics) VectorStoreOperations(backend, operation, status string) float64 {
	if m == nil {
		return 0
	}
	return m.vectorOps.Value(backend, operation, status)
}

func (m *Metrics) AddReindexed(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reindexedChunk.Add(float64(n), status)
}

// StartRedisCollector pings addr on an interval until ctx is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	interval := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer rdb.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StatusLabel renders an HTTP status code for metric labels.
func StatusLabel(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
