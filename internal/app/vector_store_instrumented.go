package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

type instrumentedBackend struct {
	inner   vectorstore.Backend
	metrics *observability.Metrics
}

func instrumentBackend(inner vectorstore.Backend) vectorstore.Backend {
	if inner == nil {
		return nil
	}
	return &instrumentedBackend{inner: inner, metrics: observability.Current()}
}

func (b *instrumentedBackend) Name() string { return b.inner.Name() }

func (b *instrumentedBackend) Init(ctx context.Context) (err error) {
	ctx, done := b.start(ctx, "init")
	defer func() { done(err) }()
	return b.inner.Init(ctx)
}

func (b *instrumentedBackend) Upsert(ctx context.Context, records []vectorstore.Record) (err error) {
	ctx, done := b.start(ctx, "upsert", attribute.Int("vectorstore.records", len(records)))
	defer func() { done(err) }()
	return b.inner.Upsert(ctx, records)
}

func (b *instrumentedBackend) Search(ctx context.Context, vector []float32, kbIDs []uuid.UUID, topK int) (hits []vectorstore.Hit, err error) {
	ctx, done := b.start(ctx, "search", attribute.Int("vectorstore.top_k", topK), attribute.Int("vectorstore.kb_count", len(kbIDs)))
	defer func() { done(err) }()
	return b.inner.Search(ctx, vector, kbIDs, topK)
}

func (b *instrumentedBackend) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (err error) {
	ctx, done := b.start(ctx, "delete_by_document")
	defer func() { done(err) }()
	return b.inner.DeleteByDocument(ctx, documentID)
}

func (b *instrumentedBackend) DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) (err error) {
	ctx, done := b.start(ctx, "delete_by_knowledge_base")
	defer func() { done(err) }()
	return b.inner.DeleteByKnowledgeBase(ctx, kbID)
}

func (b *instrumentedBackend) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("vectorstore.backend", b.inner.Name()))
	ctx, span := observability.StartSpan(ctx, "vectorstore."+op, attrs...)
	began := time.Now()
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.ObserveVectorStoreOperation(b.inner.Name(), op, status, time.Since(began))
		observability.EndSpan(span, err)
	}
}
