package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
)

func SeedKnowledgeBase(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, visibility string) *types.KnowledgeBase {
	tb.Helper()
	kb := &types.KnowledgeBase{
		OwnerID:    ownerID,
		Name:       "kb",
		Visibility: visibility,
	}
	if err := tx.WithContext(ctx).Create(kb).Error; err != nil {
		tb.Fatalf("seed knowledge base: %v", err)
	}
	return kb
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, kbID uuid.UUID, title, status string) *types.KbDocument {
	tb.Helper()
	doc := &types.KbDocument{
		KbID:     kbID,
		Title:    title,
		FileType: "md",
		FilePath: title + ".md",
		Status:   status,
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedChunks(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, contents ...string) []*types.KbChunk {
	tb.Helper()
	out := make([]*types.KbChunk, 0, len(contents))
	for i, c := range contents {
		out = append(out, &types.KbChunk{
			DocumentID:  documentID,
			ChunkIndex:  i,
			Content:     c,
			HeadingPath: "Intro",
			TokenCount:  len(c) / 4,
		})
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed chunks: %v", err)
	}
	return out
}

func SeedResource(tb testing.TB, ctx context.Context, tx *gorm.DB, title, domain string, quality float64, tags ...string) *types.Resource {
	tb.Helper()
	raw, _ := json.Marshal(tags)
	r := &types.Resource{
		Title:        title,
		URL:          "https://example.com/" + title,
		Domain:       domain,
		Tags:         datatypes.JSON(raw),
		Description:  title + " description",
		QualityScore: quality,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed resource: %v", err)
	}
	return r
}
