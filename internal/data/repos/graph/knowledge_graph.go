package graph

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type KnowledgeGraphRepo interface {
	Create(dbc dbctx.Context, g *types.KnowledgeGraph) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeGraph, error)
	ListByCreator(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.KnowledgeGraph, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type knowledgeGraphRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeGraphRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeGraphRepo {
	return &knowledgeGraphRepo{db: db, log: baseLog.With("repo", "KnowledgeGraphRepo")}
}

func (r *knowledgeGraphRepo) Create(dbc dbctx.Context, g *types.KnowledgeGraph) error {
	if g == nil {
		return errors.New("nil knowledge graph")
	}
	return dbc.Conn(r.db).Create(g).Error
}

func (r *knowledgeGraphRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeGraph, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var g types.KnowledgeGraph
	err := dbc.Conn(r.db).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *knowledgeGraphRepo) ListByCreator(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.KnowledgeGraph, error) {
	var out []*types.KnowledgeGraph
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := dbc.Conn(r.db).
		Where("created_by = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *knowledgeGraphRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.Conn(r.db).Model(&types.KnowledgeGraph{}).Where("id = ?", id).Updates(updates).Error
}
