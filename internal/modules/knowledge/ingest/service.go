// Package ingest owns the document lifecycle: upload, parse, chunk, embed,
// index, and removal, plus the full vector reindex.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/chunking"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/parser"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/embedding"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

// ReindexBatchSize is the number of chunks embedded and upserted together.
const ReindexBatchSize = 20

var (
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrDocumentNotFound      = errors.New("document not found")
)

// VectorIndex is the write side of the vector store; *vectorstore.Store
// satisfies it.
type VectorIndex interface {
	Ready() bool
	Upsert(ctx context.Context, records []vectorstore.Record) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error
}

// Dispatcher schedules ProcessDocument for a freshly uploaded document.
type Dispatcher interface {
	DispatchIngest(ctx context.Context, documentID uuid.UUID) error
}

type Service struct {
	db         *gorm.DB
	log        *logger.Logger
	kbs        repos.KnowledgeBaseRepo
	docs       repos.KbDocumentRepo
	chunks     repos.KbChunkRepo
	embedder   embedding.Embedder
	index      VectorIndex
	dispatcher Dispatcher
}

// New builds the service. embedder and index may be nil, in which case
// documents are chunked and stored but never embedded.
func New(db *gorm.DB, baseLog *logger.Logger, kbs repos.KnowledgeBaseRepo, docs repos.KbDocumentRepo, chunks repos.KbChunkRepo, embedder embedding.Embedder, index VectorIndex) *Service {
	s := &Service{
		db:       db,
		log:      baseLog.With("service", "IngestService"),
		kbs:      kbs,
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		index:    index,
	}
	s.dispatcher = &inlineDispatcher{svc: s}
	return s
}

// SetDispatcher replaces the default in-process dispatcher.
func (s *Service) SetDispatcher(d Dispatcher) {
	if d != nil {
		s.dispatcher = d
	}
}

type UploadRequest struct {
	KbID     uuid.UUID
	FileName string
	FilePath string
	FileSize int64
}

// Upload records a pending document and dispatches its processing. The
// returned document is still pending.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*types.KbDocument, error) {
	fileType, err := parser.DetectType(req.FileName)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.New(ctx)
	kb, err := s.kbs.GetByID(dbc, req.KbID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, ErrKnowledgeBaseNotFound
	}
	doc := &types.KbDocument{
		KbID:     kb.ID,
		Title:    req.FileName,
		FileType: fileType,
		FilePath: req.FilePath,
		FileSize: req.FileSize,
		Status:   types.DocumentStatusPending,
	}
	if err := s.docs.Create(dbc, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.log.Info("Document uploaded", "document_id", doc.ID.String(), "kb_id", kb.ID.String(), "file_type", fileType)

	if err := s.dispatcher.DispatchIngest(ctx, doc.ID); err != nil {
		s.fail(ctx, doc, fmt.Errorf("dispatch: %w", err))
		return nil, err
	}
	return doc, nil
}

// ProcessDocument runs the pipeline for one document. Any failure leaves the
// document in the failed state with its error message, and is returned.
func (s *Service) ProcessDocument(ctx context.Context, documentID uuid.UUID) error {
	ctx, span := observability.StartSpan(ctx, "ingest.process")
	err := s.process(ctx, documentID)
	observability.EndSpan(span, err)
	return err
}

func (s *Service) process(ctx context.Context, documentID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	doc, err := s.docs.GetByID(dbc, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	log := s.log.With("document_id", doc.ID.String(), "kb_id", doc.KbID.String())
	if err := s.docs.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":        types.DocumentStatusProcessing,
		"error_message": "",
	}); err != nil {
		return err
	}

	parsed, err := parser.Parse(doc.FilePath, doc.FileType)
	if err != nil {
		return s.fail(ctx, doc, err)
	}
	pieces := chunking.Split(parsed.Content)
	if len(pieces) == 0 {
		return s.fail(ctx, doc, errors.New("document has no text content"))
	}
	log.Info("Document chunked", "chunks", len(pieces))

	rows := make([]*types.KbChunk, 0, len(pieces))
	total := 0
	for _, p := range pieces {
		rows = append(rows, &types.KbChunk{
			DocumentID:  doc.ID,
			ChunkIndex:  p.Index,
			Content:     p.Content,
			HeadingPath: p.HeadingPath,
			TokenCount:  p.TokenCount,
		})
		total += p.TokenCount
	}

	// A retried document replaces its previous chunks.
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.chunks.DeleteByDocument(tdbc, doc.ID); err != nil {
			return err
		}
		_, err := s.chunks.Create(tdbc, rows)
		return err
	})
	if err != nil {
		return s.fail(ctx, doc, fmt.Errorf("save chunks: %w", err))
	}

	if s.indexing() {
		if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
			return s.fail(ctx, doc, fmt.Errorf("clear vectors: %w", err))
		}
		if _, err := s.embedAndUpsert(ctx, doc, rows); err != nil {
			return s.fail(ctx, doc, err)
		}
	} else {
		log.Warn("Vector store unavailable; document is searchable by keyword only")
	}

	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.docs.UpdateFields(tdbc, doc.ID, map[string]interface{}{
			"status":      types.DocumentStatusCompleted,
			"token_count": total,
		}); err != nil {
			return err
		}
		if doc.Status == types.DocumentStatusCompleted {
			return nil
		}
		return s.kbs.IncrementDocumentCount(tdbc, doc.KbID, 1)
	})
	if err != nil {
		return s.fail(ctx, doc, fmt.Errorf("complete document: %w", err))
	}
	observability.Current().IncIngestion(doc.FileType, "completed")
	log.Info("Document processed", "chunks", len(rows), "tokens", total)
	return nil
}

func (s *Service) indexing() bool {
	return s.embedder != nil && s.index != nil && s.index.Ready()
}

// embedAndUpsert writes vectors for chunks in ReindexBatchSize batches and
// returns how many were written.
func (s *Service) embedAndUpsert(ctx context.Context, doc *types.KbDocument, chunks []*types.KbChunk) (int, error) {
	done := 0
	for start := 0; start < len(chunks); start += ReindexBatchSize {
		batch := chunks[start:min(start+ReindexBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return done, fmt.Errorf("embed chunks: %w", err)
		}
		records := make([]vectorstore.Record, len(batch))
		for i, c := range batch {
			records[i] = vectorstore.Record{
				ChunkID:         c.ID,
				DocumentID:      doc.ID,
				KnowledgeBaseID: doc.KbID,
				Content:         c.Content,
				Embedding:       vecs[i],
			}
		}
		if err := s.index.Upsert(ctx, records); err != nil {
			return done, fmt.Errorf("upsert vectors: %w", err)
		}
		done += len(batch)
	}
	return done, nil
}

// fail records err on the document and returns it.
func (s *Service) fail(ctx context.Context, doc *types.KbDocument, err error) error {
	msg := strings.TrimSpace(err.Error())
	if uerr := s.docs.UpdateFields(dbctx.New(context.WithoutCancel(ctx)), doc.ID, map[string]interface{}{
		"status":        types.DocumentStatusFailed,
		"error_message": msg,
	}); uerr != nil {
		s.log.Warn("Failed to mark document failed", "document_id", doc.ID.String(), "error", uerr)
	}
	observability.Current().IncIngestion(doc.FileType, "failed")
	s.log.Error("Document processing failed", "document_id", doc.ID.String(), "error", msg)
	return err
}

// RemoveDocument deletes vectors, then chunks, then the document row.
func (s *Service) RemoveDocument(ctx context.Context, kbID, documentID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	doc, err := s.docs.GetByID(dbc, documentID)
	if err != nil {
		return err
	}
	if doc == nil || doc.KbID != kbID {
		return ErrDocumentNotFound
	}
	if s.index != nil {
		if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.chunks.DeleteByDocument(tdbc, doc.ID); err != nil {
			return err
		}
		if err := s.docs.Delete(tdbc, doc.ID); err != nil {
			return err
		}
		if doc.Status == types.DocumentStatusCompleted {
			return s.kbs.IncrementDocumentCount(tdbc, doc.KbID, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.log.Info("Document removed", "document_id", doc.ID.String(), "kb_id", kbID.String())
	return nil
}

// RemoveKnowledgeBase clears the knowledge base from the vector store, then
// deletes its chunks, documents, collaborators, and the row itself.
func (s *Service) RemoveKnowledgeBase(ctx context.Context, kbID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	kb, err := s.kbs.GetByID(dbc, kbID)
	if err != nil {
		return err
	}
	if kb == nil {
		return ErrKnowledgeBaseNotFound
	}
	if s.index != nil {
		if err := s.index.DeleteByKnowledgeBase(ctx, kb.ID); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.chunks.DeleteByKB(tdbc, kb.ID); err != nil {
			return err
		}
		if err := s.docs.DeleteByKB(tdbc, kb.ID); err != nil {
			return err
		}
		return s.kbs.Delete(tdbc, kb.ID)
	})
	if err != nil {
		return fmt.Errorf("delete knowledge base: %w", err)
	}
	s.log.Info("Knowledge base removed", "kb_id", kb.ID.String())
	return nil
}

type ReindexResult struct {
	TotalChunks int `json:"totalChunks"`
	Processed   int `json:"processed"`
}

// ReindexAllChunks re-embeds every chunk of every completed document, one
// document at a time. It stops at the first failure and reports progress so
// far alongside the error.
func (s *Service) ReindexAllChunks(ctx context.Context) (ReindexResult, error) {
	ctx, span := observability.StartSpan(ctx, "ingest.reindex")
	res, err := s.reindex(ctx)
	observability.EndSpan(span, err)
	observability.Current().AddReindexed("processed", res.Processed)
	return res, err
}

func (s *Service) reindex(ctx context.Context) (ReindexResult, error) {
	var res ReindexResult
	dbc := dbctx.New(ctx)
	docs, err := s.docs.ListByStatus(dbc, types.DocumentStatusCompleted)
	if err != nil {
		return res, err
	}
	if !s.indexing() {
		n, err := s.chunks.CountCompleted(dbc)
		if err != nil {
			return res, err
		}
		res.TotalChunks = int(n)
		return res, vectorstore.ErrNotReady
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunks, err := s.chunks.ListByDocument(dbc, doc.ID)
		if err != nil {
			return res, err
		}
		res.TotalChunks += len(chunks)
		n, err := s.embedAndUpsert(ctx, doc, chunks)
		res.Processed += n
		if err != nil {
			return res, fmt.Errorf("reindex document %s: %w", doc.ID, err)
		}
		s.log.Info("Document reindexed", "document_id", doc.ID.String(), "chunks", len(chunks))
	}
	return res, nil
}

// inlineDispatcher processes documents on a detached goroutine.
type inlineDispatcher struct {
	svc *Service
}

func (d *inlineDispatcher) DispatchIngest(ctx context.Context, documentID uuid.UUID) error {
	bg := context.WithoutCancel(ctx)
	go func() {
		_ = d.svc.ProcessDocument(bg, documentID)
	}()
	return nil
}
