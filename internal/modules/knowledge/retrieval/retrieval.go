// Package retrieval serves knowledge-base passages for a query. It prefers
// semantic search and degrades to keyword matching over the relational chunk
// store whenever the vector store is not ready.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/embedding"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

const (
	DefaultTopK = 5

	ModeVector  = "vector"
	ModeKeyword = "keyword"
	ModeEmpty   = "empty"

	// UnknownSource labels hits whose document row is gone.
	UnknownSource = "unknown document"

	maxKeywordCandidates = 1000
)

type Result struct {
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	HeadingPath string    `json:"headingPath"`
	Score       float64   `json:"score"`
	DocumentID  uuid.UUID `json:"documentId"`
	ChunkID     uuid.UUID `json:"chunkId"`
}

// VectorIndex is the subset of vectorstore.Store used for search.
type VectorIndex interface {
	Ready() bool
	Search(ctx context.Context, vector []float32, kbIDs []uuid.UUID, topK int) ([]vectorstore.Hit, error)
}

type Engine struct {
	log      *logger.Logger
	embedder embedding.Embedder
	index    VectorIndex
	chunks   repos.KbChunkRepo
	docs     repos.KbDocumentRepo
}

// New builds an engine. A nil embedder or index always takes the keyword path.
func New(log *logger.Logger, embedder embedding.Embedder, index VectorIndex, chunks repos.KbChunkRepo, docs repos.KbDocumentRepo) *Engine {
	return &Engine{
		log:      log.With("service", "RetrievalEngine"),
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		docs:     docs,
	}
}

// Mode reports which path Retrieve takes right now.
func (e *Engine) Mode() string {
	if e.index != nil && e.embedder != nil && e.index.Ready() {
		return ModeVector
	}
	return ModeKeyword
}

// Retrieve returns up to topK passages from the given knowledge bases.
// It never fails: any error reduces to an empty result.
func (e *Engine) Retrieve(ctx context.Context, query string, kbIDs []uuid.UUID, topK int) []Result {
	if len(kbIDs) == 0 || strings.TrimSpace(query) == "" {
		observability.Current().IncRetrieval(ModeEmpty)
		return []Result{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	mode := e.Mode()
	ctx, span := observability.StartSpan(ctx, "retrieval.retrieve",
		attribute.String("retrieval.mode", mode),
		attribute.Int("retrieval.kb_count", len(kbIDs)),
		attribute.Int("retrieval.top_k", topK),
	)
	defer observability.EndSpan(span, nil)

	observability.Current().IncRetrieval(mode)
	if mode == ModeVector {
		return e.vectorRetrieve(ctx, query, kbIDs, topK)
	}
	e.log.Debug("Vector store not ready; using keyword retrieval", "kb_count", len(kbIDs))
	return e.keywordRetrieve(ctx, query, kbIDs, topK)
}

func (e *Engine) vectorRetrieve(ctx context.Context, query string, kbIDs []uuid.UUID, topK int) []Result {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.log.Warn("Query embedding failed", "error", err)
		return []Result{}
	}
	hits, err := e.index.Search(ctx, vec, kbIDs, topK)
	if err != nil {
		e.log.Warn("Vector search failed", "error", err)
		return []Result{}
	}
	if len(hits) == 0 {
		return []Result{}
	}

	chunkIDs := make([]uuid.UUID, 0, len(hits))
	docSet := map[uuid.UUID]struct{}{}
	for _, h := range hits {
		chunkIDs = append(chunkIDs, h.ChunkID)
		docSet[h.DocumentID] = struct{}{}
	}
	docIDs := make([]uuid.UUID, 0, len(docSet))
	for id := range docSet {
		docIDs = append(docIDs, id)
	}

	dbc := dbctx.New(ctx)
	docs, err := e.docs.GetByIDs(dbc, docIDs)
	if err != nil {
		e.log.Warn("Document lookup for vector hits failed", "error", err)
		return []Result{}
	}
	chunks, err := e.chunks.GetByIDs(dbc, chunkIDs)
	if err != nil {
		e.log.Warn("Chunk lookup for vector hits failed", "error", err)
		return []Result{}
	}
	titles := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	headings := make(map[uuid.UUID]string, len(chunks))
	for _, c := range chunks {
		headings[c.ID] = c.HeadingPath
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		source, ok := titles[h.DocumentID]
		if !ok || source == "" {
			source = UnknownSource
		}
		out = append(out, Result{
			Content:     h.Content,
			Source:      source,
			HeadingPath: headings[h.ChunkID],
			Score:       h.Score,
			DocumentID:  h.DocumentID,
			ChunkID:     h.ChunkID,
		})
	}
	return out
}

func (e *Engine) keywordRetrieve(ctx context.Context, query string, kbIDs []uuid.UUID, topK int) []Result {
	keywords := Keywords(query)
	hits, err := e.chunks.KeywordSearch(dbctx.New(ctx), kbIDs, keywords, maxKeywordCandidates)
	if err != nil {
		e.log.Warn("Keyword retrieval failed", "error", err)
		return []Result{}
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		content := strings.ToLower(h.Content)
		matched := 0
		for _, kw := range lowered {
			if strings.Contains(content, kw) {
				matched++
			}
		}
		source := h.DocumentTitle
		if source == "" {
			source = UnknownSource
		}
		out = append(out, Result{
			Content:     h.Content,
			Source:      source,
			HeadingPath: h.HeadingPath,
			Score:       float64(matched) / float64(len(lowered)),
			DocumentID:  h.DocumentID,
			ChunkID:     h.ID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Keywords splits query on whitespace, keeping tokens of at least two
// characters. When none qualify the whole trimmed query is the only keyword.
func Keywords(query string) []string {
	var out []string
	for _, f := range strings.Fields(query) {
		if utf8.RuneCountInString(f) >= 2 {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		if q := strings.TrimSpace(query); q != "" {
			out = append(out, q)
		}
	}
	return out
}
