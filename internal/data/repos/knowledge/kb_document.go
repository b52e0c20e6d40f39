package knowledge

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type KbDocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.KbDocument) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KbDocument, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.KbDocument, error)
	ListByKB(dbc dbctx.Context, kbID uuid.UUID) ([]*types.KbDocument, error)
	ListByStatus(dbc dbctx.Context, status string) ([]*types.KbDocument, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByKB(dbc dbctx.Context, kbID uuid.UUID) error
}

type kbDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKbDocumentRepo(db *gorm.DB, baseLog *logger.Logger) KbDocumentRepo {
	return &kbDocumentRepo{db: db, log: baseLog.With("repo", "KbDocumentRepo")}
}

func (r *kbDocumentRepo) Create(dbc dbctx.Context, doc *types.KbDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	return dbc.Conn(r.db).Create(doc).Error
}

func (r *kbDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KbDocument, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.KbDocument
	err := dbc.Conn(r.db).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *kbDocumentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.KbDocument, error) {
	var out []*types.KbDocument
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbDocumentRepo) ListByKB(dbc dbctx.Context, kbID uuid.UUID) ([]*types.KbDocument, error) {
	var out []*types.KbDocument
	if kbID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("kb_id = ?", kbID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbDocumentRepo) ListByStatus(dbc dbctx.Context, status string) ([]*types.KbDocument, error) {
	var out []*types.KbDocument
	if err := dbc.Conn(r.db).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbDocumentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.Conn(r.db).Model(&types.KbDocument{}).Where("id = ?", id).Updates(updates).Error
}

func (r *kbDocumentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).Where("id = ?", id).Delete(&types.KbDocument{}).Error
}

func (r *kbDocumentRepo) DeleteByKB(dbc dbctx.Context, kbID uuid.UUID) error {
	if kbID == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).Where("kb_id = ?", kbID).Delete(&types.KbDocument{}).Error
}
