package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

const (
	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadKBID       = "kb_id"
	payloadContent    = "content"
	maxErrorBodyBytes = 1024
)

var pointIDNamespace = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

type backend struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// New returns a Qdrant-backed vectorstore.Backend. No network calls happen
// until Init.
func New(log *logger.Logger, cfg Config) (vectorstore.Backend, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = "kb_embeddings"
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	return &backend{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (b *backend) Name() string { return "qdrant" }

// Init checks readiness, then creates the collection and payload indexes
// when missing. An existing collection with a different vector size fails.
func (b *backend) Init(ctx context.Context) error {
	const op = "init"
	readyReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	b.authorize(readyReq)
	readyResp, err := b.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: readyResp.StatusCode, Message: "qdrant ready check failed"}
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = b.doJSON(ctx, op, http.MethodGet, b.collectionPath(""), nil, &info)
	var oe *OperationError
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != b.cfg.VectorDim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", b.cfg.Collection, b.cfg.VectorDim, size), nil)
		}
	case errors.As(err, &oe) && oe.Code == OperationErrorNotFound:
		if err := b.createCollection(ctx); err != nil {
			return err
		}
	default:
		return err
	}

	b.log.Info("Qdrant collection ready", "url", b.baseURL, "collection", b.cfg.Collection, "vector_dim", b.cfg.VectorDim)
	return nil
}

func (b *backend) createCollection(ctx context.Context) error {
	const op = "create_collection"
	req := map[string]any{"vectors": map[string]any{"size": b.cfg.VectorDim, "distance": b.cfg.Distance}}
	if err := b.doJSON(ctx, op, http.MethodPut, b.collectionPath(""), req, nil); err != nil {
		return err
	}
	for _, field := range []string{payloadKBID, payloadDocumentID} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := b.doJSON(ctx, op, http.MethodPut, b.collectionPath("/index?wait=true"), idx, nil); err != nil {
			return err
		}
	}
	b.log.Info("Qdrant collection created", "collection", b.cfg.Collection, "distance", b.cfg.Distance)
	return nil
}

func (b *backend) Upsert(ctx context.Context, records []vectorstore.Record) error {
	const op = "upsert"
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if r.ChunkID == uuid.Nil {
			return opErr(op, OperationErrorValidation, "chunk id is required", nil)
		}
		if len(r.Embedding) != b.cfg.VectorDim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("chunk %s dimension mismatch: expected=%d got=%d", r.ChunkID, b.cfg.VectorDim, len(r.Embedding)), nil)
		}
		points = append(points, map[string]any{
			"id":     pointID(r.ChunkID),
			"vector": r.Embedding,
			"payload": map[string]any{
				payloadChunkID:    r.ChunkID.String(),
				payloadDocumentID: r.DocumentID.String(),
				payloadKBID:       r.KnowledgeBaseID.String(),
				payloadContent:    r.Content,
			},
		})
	}
	return b.doJSON(ctx, op, http.MethodPut, b.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (b *backend) Search(ctx context.Context, vector []float32, kbIDs []uuid.UUID, topK int) ([]vectorstore.Hit, error) {
	const op = "search"
	if len(vector) != b.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", b.cfg.VectorDim, len(vector)), nil)
	}
	filter, err := compileFilter(map[string]any{payloadKBID: map[string]any{filterOpIn: uuidStrings(kbIDs)}})
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       filter.asMap(),
	}
	var raw []searchResultItem
	if err := b.doJSON(ctx, op, http.MethodPost, b.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Hit, 0, len(raw))
	for _, item := range raw {
		chunkID, err := uuid.Parse(payloadString(item.Payload, payloadChunkID))
		if err != nil {
			continue
		}
		docID, _ := uuid.Parse(payloadString(item.Payload, payloadDocumentID))
		kbID, _ := uuid.Parse(payloadString(item.Payload, payloadKBID))
		out = append(out, vectorstore.Hit{
			ChunkID:         chunkID,
			DocumentID:      docID,
			KnowledgeBaseID: kbID,
			Content:         payloadString(item.Payload, payloadContent),
			Score:           item.Score,
		})
	}
	return out, nil
}

func (b *backend) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return b.deleteWhere(ctx, "delete_by_document", payloadDocumentID, documentID)
}

func (b *backend) DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error {
	return b.deleteWhere(ctx, "delete_by_kb", payloadKBID, kbID)
}

func (b *backend) deleteWhere(ctx context.Context, op, field string, id uuid.UUID) error {
	filter, err := compileFilter(map[string]any{field: map[string]any{filterOpEq: id.String()}})
	if err != nil {
		return err
	}
	return b.doJSON(ctx, op, http.MethodPost, b.collectionPath("/points/delete?wait=true"), map[string]any{"filter": filter.asMap()}, nil)
}

func (b *backend) authorize(req *http.Request) {
	if b.cfg.APIKey != "" {
		req.Header.Set("api-key", b.cfg.APIKey)
	}
}

func (b *backend) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{Code: OperationErrorNotFound, Operation: op, StatusCode: resp.StatusCode, Message: truncateBody(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(env.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return "qdrant status=" + status
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// pointID is stable per chunk so re-indexing overwrites instead of duplicating.
func pointID(chunkID uuid.UUID) string {
	return uuid.NewSHA1(pointIDNamespace, []byte("chunk|"+chunkID.String())).String()
}

func (b *backend) collectionPath(suffix string) string {
	return "/collections/" + b.cfg.Collection + suffix
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
