package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	"github.com/yungbote/knowtree-backend/internal/data/repos/testutil"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/parser"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	texts int
	err   error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

type recordingDispatcher struct {
	ids []uuid.UUID
}

func (r *recordingDispatcher) DispatchIngest(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	backend  *vectorstore.MemoryBackend
	embedder *fakeEmbedder
	dispatch *recordingDispatcher
	kb       *types.KnowledgeBase
	docs     repos.KbDocumentRepo
	chunks   repos.KbChunkRepo
	kbs      repos.KnowledgeBaseRepo
}

func newFixture(t *testing.T, vectorReady bool) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	backend := vectorstore.NewMemoryBackend(3)
	store := vectorstore.NewUnavailable(log)
	if vectorReady {
		store = vectorstore.New(log, backend)
	}
	store.Init(ctx)

	f := &fixture{
		db:       db,
		backend:  backend,
		embedder: &fakeEmbedder{},
		dispatch: &recordingDispatcher{},
		docs:     repos.NewKbDocumentRepo(db, log),
		chunks:   repos.NewKbChunkRepo(db, log),
		kbs:      repos.NewKnowledgeBaseRepo(db, log),
	}
	f.svc = New(db, log, f.kbs, f.docs, f.chunks, f.embedder, store)
	f.svc.SetDispatcher(f.dispatch)
	f.kb = testutil.SeedKnowledgeBase(t, ctx, db, uuid.New(), types.VisibilityPrivate)
	return f
}

func (f *fixture) upload(t *testing.T, name, body string) *types.KbDocument {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := f.svc.Upload(context.Background(), UploadRequest{KbID: f.kb.ID, FileName: name, FilePath: p, FileSize: int64(len(body))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return doc
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *types.KbDocument {
	t.Helper()
	doc, err := f.docs.GetByID(dbctx.New(context.Background()), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return doc
}

func (f *fixture) docCount(t *testing.T) int {
	t.Helper()
	kb, err := f.kbs.GetByID(dbctx.New(context.Background()), f.kb.ID)
	if err != nil || kb == nil {
		t.Fatalf("load kb: %v", err)
	}
	return kb.DocumentCount
}

const guide = "# Setup\ninstall the toolchain\n\n## Linux\nuse the package manager\n# Usage\nrun the binary"

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Upload(context.Background(), UploadRequest{KbID: f.kb.ID, FileName: "virus.exe", FilePath: "/tmp/virus.exe"})
	if !errors.Is(err, parser.ErrUnsupportedType) {
		t.Fatalf("err: want ErrUnsupportedType got %v", err)
	}
	if len(f.dispatch.ids) != 0 {
		t.Fatalf("dispatch: want none got %d", len(f.dispatch.ids))
	}
}

func TestUploadUnknownKnowledgeBase(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Upload(context.Background(), UploadRequest{KbID: uuid.New(), FileName: "a.md", FilePath: "/tmp/a.md"})
	if !errors.Is(err, ErrKnowledgeBaseNotFound) {
		t.Fatalf("err: want=%v got=%v", ErrKnowledgeBaseNotFound, err)
	}
}

func TestProcessDocumentIndexesChunks(t *testing.T) {
	f := newFixture(t, true)
	doc := f.upload(t, "guide.md", guide)
	if doc.Status != types.DocumentStatusPending || len(f.dispatch.ids) != 1 || f.dispatch.ids[0] != doc.ID {
		t.Fatalf("upload: status=%s dispatched=%v", doc.Status, f.dispatch.ids)
	}

	if err := f.svc.ProcessDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	got := f.reload(t, doc.ID)
	if got.Status != types.DocumentStatusCompleted || got.TokenCount == 0 || got.ErrorMessage != "" {
		t.Fatalf("document: got %+v", got)
	}
	chunks, err := f.chunks.ListByDocument(dbctx.New(context.Background()), doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d", len(chunks))
	}
	if chunks[1].HeadingPath != "Setup > Linux" || chunks[1].ChunkIndex != 1 {
		t.Fatalf("chunk 1: got %+v", chunks[1])
	}
	if f.backend.Len() != 3 {
		t.Fatalf("vectors: want=3 got=%d", f.backend.Len())
	}
	if f.docCount(t) != 1 {
		t.Fatalf("document count: want=1 got=%d", f.docCount(t))
	}

	// Reprocessing replaces chunks and keeps the count.
	if err := f.svc.ProcessDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessDocument again: %v", err)
	}
	chunks, _ = f.chunks.ListByDocument(dbctx.New(context.Background()), doc.ID)
	if len(chunks) != 3 || f.backend.Len() != 3 || f.docCount(t) != 1 {
		t.Fatalf("reprocess: chunks=%d vectors=%d count=%d", len(chunks), f.backend.Len(), f.docCount(t))
	}
}

func TestProcessDocumentWithoutVectorStore(t *testing.T) {
	f := newFixture(t, false)
	doc := f.upload(t, "guide.md", guide)
	if err := f.svc.ProcessDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if got := f.reload(t, doc.ID); got.Status != types.DocumentStatusCompleted {
		t.Fatalf("status: want completed got %s", got.Status)
	}
	if f.embedder.texts != 0 {
		t.Fatalf("embedder: want no calls got %d texts", f.embedder.texts)
	}
}

func TestProcessDocumentFailureIsRecorded(t *testing.T) {
	f := newFixture(t, true)
	doc := f.upload(t, "guide.md", guide)
	f.embedder.err = errors.New("quota exceeded")

	err := f.svc.ProcessDocument(context.Background(), doc.ID)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err: want quota exceeded got %v", err)
	}
	got := f.reload(t, doc.ID)
	if got.Status != types.DocumentStatusFailed || !strings.Contains(got.ErrorMessage, "quota exceeded") {
		t.Fatalf("document: got status=%s message=%q", got.Status, got.ErrorMessage)
	}
	if f.docCount(t) != 0 {
		t.Fatalf("document count: want=0 got=%d", f.docCount(t))
	}

	missing := &types.KbDocument{KbID: f.kb.ID, Title: "gone.md", FileType: "md", FilePath: filepath.Join(t.TempDir(), "gone.md")}
	if err := f.docs.Create(dbctx.New(context.Background()), missing); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.ProcessDocument(context.Background(), missing.ID); err == nil {
		t.Fatalf("missing file: want error")
	}
	if got := f.reload(t, missing.ID); got.Status != types.DocumentStatusFailed || got.ErrorMessage == "" {
		t.Fatalf("missing file: got status=%s message=%q", got.Status, got.ErrorMessage)
	}
}

func TestRemoveDocument(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	doc := f.upload(t, "guide.md", guide)
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	if err := f.svc.RemoveDocument(ctx, uuid.New(), doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("wrong kb: want=%v got=%v", ErrDocumentNotFound, err)
	}
	if err := f.svc.RemoveDocument(ctx, f.kb.ID, doc.ID); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if f.reload(t, doc.ID) != nil {
		t.Fatalf("document still present")
	}
	chunks, _ := f.chunks.ListByDocument(dbctx.New(ctx), doc.ID)
	if len(chunks) != 0 || f.backend.Len() != 0 || f.docCount(t) != 0 {
		t.Fatalf("after remove: chunks=%d vectors=%d count=%d", len(chunks), f.backend.Len(), f.docCount(t))
	}
}

func TestRemoveKnowledgeBase(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	doc := f.upload(t, "guide.md", guide)
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if err := f.svc.RemoveKnowledgeBase(ctx, f.kb.ID); err != nil {
		t.Fatalf("RemoveKnowledgeBase: %v", err)
	}
	kb, err := f.kbs.GetByID(dbctx.New(ctx), f.kb.ID)
	if err != nil || kb != nil {
		t.Fatalf("kb: want deleted got %+v err=%v", kb, err)
	}
	if f.reload(t, doc.ID) != nil || f.backend.Len() != 0 {
		t.Fatalf("kb contents not removed")
	}
	if err := f.svc.RemoveKnowledgeBase(ctx, f.kb.ID); !errors.Is(err, ErrKnowledgeBaseNotFound) {
		t.Fatalf("second remove: want=%v got=%v", ErrKnowledgeBaseNotFound, err)
	}
}

func TestReindexAllChunks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	doc := f.upload(t, "guide.md", guide)
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	// A pending document is skipped.
	f.upload(t, "later.md", "# Later\nnot processed")

	if err := f.backend.DeleteByDocument(ctx, doc.ID); err != nil {
		t.Fatalf("drop vectors: %v", err)
	}
	res, err := f.svc.ReindexAllChunks(ctx)
	if err != nil {
		t.Fatalf("ReindexAllChunks: %v", err)
	}
	if res.TotalChunks != 3 || res.Processed != 3 || f.backend.Len() != 3 {
		t.Fatalf("reindex: got %+v vectors=%d", res, f.backend.Len())
	}
}

func TestReindexWithoutVectorStore(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	doc := f.upload(t, "guide.md", guide)
	if err := f.svc.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	res, err := f.svc.ReindexAllChunks(ctx)
	if !errors.Is(err, vectorstore.ErrNotReady) {
		t.Fatalf("err: want=%v got=%v", vectorstore.ErrNotReady, err)
	}
	if res.TotalChunks != 3 || res.Processed != 0 {
		t.Fatalf("result: got %+v", res)
	}
}
