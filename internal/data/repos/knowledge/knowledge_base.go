package knowledge

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type KnowledgeBaseRepo interface {
	Create(dbc dbctx.Context, kb *types.KnowledgeBase) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeBase, error)
	// AccessibleIDs returns the union of owned, shared-with and public knowledge bases.
	AccessibleIDs(dbc dbctx.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AddCollaborator(dbc dbctx.Context, kbID, userID uuid.UUID, role string) error
	IncrementDocumentCount(dbc dbctx.Context, id uuid.UUID, delta int) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type knowledgeBaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	return &knowledgeBaseRepo{db: db, log: baseLog.With("repo", "KnowledgeBaseRepo")}
}

func (r *knowledgeBaseRepo) Create(dbc dbctx.Context, kb *types.KnowledgeBase) error {
	if kb == nil {
		return errors.New("nil knowledge base")
	}
	return dbc.Conn(r.db).Create(kb).Error
}

func (r *knowledgeBaseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeBase, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var kb types.KnowledgeBase
	err := dbc.Conn(r.db).Where("id = ?", id).First(&kb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

func (r *knowledgeBaseRepo) AccessibleIDs(dbc dbctx.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	conn := dbc.Conn(r.db)
	var ids []uuid.UUID
	q := conn.Model(&types.KnowledgeBase{}).Where("visibility = ?", types.VisibilityPublic)
	if userID != uuid.Nil {
		shared := conn.Model(&types.KbCollaborator{}).Select("kb_id").Where("user_id = ?", userID)
		q = q.Or("owner_id = ?", userID).Or("id IN (?)", shared)
	}
	if err := q.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *knowledgeBaseRepo) AddCollaborator(dbc dbctx.Context, kbID, userID uuid.UUID, role string) error {
	if kbID == uuid.Nil || userID == uuid.Nil {
		return errors.New("kb id and user id are required")
	}
	if role == "" {
		role = "viewer"
	}
	row := &types.KbCollaborator{KbID: kbID, UserID: userID, Role: role}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kb_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(row).Error
}

func (r *knowledgeBaseRepo) IncrementDocumentCount(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.KnowledgeBase{}).
		Where("id = ?", id).
		UpdateColumn("document_count", gorm.Expr("document_count + ?", delta)).Error
}

func (r *knowledgeBaseRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	conn := dbc.Conn(r.db)
	if err := conn.Where("kb_id = ?", id).Delete(&types.KbCollaborator{}).Error; err != nil {
		return err
	}
	return conn.Where("id = ?", id).Delete(&types.KnowledgeBase{}).Error
}
