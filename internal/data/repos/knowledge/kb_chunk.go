package knowledge

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// ChunkHit is a chunk joined with its owning document.
type ChunkHit struct {
	types.KbChunk
	KbID          uuid.UUID `gorm:"column:kb_id"`
	DocumentTitle string    `gorm:"column:document_title"`
}

type KbChunkRepo interface {
	Create(dbc dbctx.Context, chunks []*types.KbChunk) ([]*types.KbChunk, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.KbChunk, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.KbChunk, error)
	CountCompleted(dbc dbctx.Context) (int64, error)
	// KeywordSearch returns chunks of completed documents in kbIDs whose content
	// contains any keyword, case-insensitively. Callers rank the results.
	KeywordSearch(dbc dbctx.Context, kbIDs []uuid.UUID, keywords []string, limit int) ([]*ChunkHit, error)
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error
	DeleteByKB(dbc dbctx.Context, kbID uuid.UUID) error
}

type kbChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKbChunkRepo(db *gorm.DB, baseLog *logger.Logger) KbChunkRepo {
	return &kbChunkRepo{db: db, log: baseLog.With("repo", "KbChunkRepo")}
}

func (r *kbChunkRepo) Create(dbc dbctx.Context, chunks []*types.KbChunk) ([]*types.KbChunk, error) {
	if len(chunks) == 0 {
		return []*types.KbChunk{}, nil
	}
	// Content is large; keep batches small.
	const batchSize = 100
	if err := dbc.Conn(r.db).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *kbChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.KbChunk, error) {
	var out []*types.KbChunk
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbChunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.KbChunk, error) {
	var out []*types.KbChunk
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbChunkRepo) CountCompleted(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.KbChunk{}).
		Joins("JOIN kb_document ON kb_document.id = kb_chunk.document_id").
		Where("kb_document.status = ?", types.DocumentStatusCompleted).
		Count(&n).Error
	return n, err
}

func (r *kbChunkRepo) KeywordSearch(dbc dbctx.Context, kbIDs []uuid.UUID, keywords []string, limit int) ([]*ChunkHit, error) {
	var out []*ChunkHit
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	if len(kbIDs) == 0 || len(lowered) == 0 {
		return out, nil
	}
	conn := dbc.Conn(r.db)
	q := conn.
		Table("kb_chunk").
		Select("kb_chunk.*, kb_document.kb_id AS kb_id, kb_document.title AS document_title").
		Joins("JOIN kb_document ON kb_document.id = kb_chunk.document_id").
		Where("kb_document.status = ?", types.DocumentStatusCompleted).
		Where("kb_document.kb_id IN ?", kbIDs).
		Order("kb_chunk.document_id, kb_chunk.chunk_index ASC")

	// SQLite's LOWER folds ASCII only, so matching happens here instead.
	if conn.Dialector.Name() == "sqlite" {
		return r.scanMatching(conn, q, lowered, limit)
	}

	match := conn.Where("1 = 0")
	for _, kw := range lowered {
		match = match.Or("LOWER(kb_chunk.content) LIKE ? ESCAPE '\\'", "%"+escapeLike(kw)+"%")
	}
	q = q.Where(match)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbChunkRepo) scanMatching(conn *gorm.DB, q *gorm.DB, keywords []string, limit int) ([]*ChunkHit, error) {
	out := []*ChunkHit{}
	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var hit ChunkHit
		if err := conn.ScanRows(rows, &hit); err != nil {
			return nil, err
		}
		if !containsAny(strings.ToLower(hit.Content), keywords) {
			continue
		}
		out = append(out, &hit)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (r *kbChunkRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).Where("document_id = ?", documentID).Delete(&types.KbChunk{}).Error
}

func (r *kbChunkRepo) DeleteByKB(dbc dbctx.Context, kbID uuid.UUID) error {
	if kbID == uuid.Nil {
		return nil
	}
	conn := dbc.Conn(r.db)
	docs := conn.Model(&types.KbDocument{}).Select("id").Where("kb_id = ?", kbID)
	return conn.Where("document_id IN (?)", docs).Delete(&types.KbChunk{}).Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
