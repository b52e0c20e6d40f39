package graph

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type GraphNodeRepo interface {
	Create(dbc dbctx.Context, nodes []*types.GraphNode) ([]*types.GraphNode, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GraphNode, error)
	ListByGraph(dbc dbctx.Context, graphID uuid.UUID) ([]*types.GraphNode, error)
	ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.GraphNode, error)
	CountByGraph(dbc dbctx.Context, graphID uuid.UUID) (int64, error)
	MaxDepthByGraph(dbc dbctx.Context, graphID uuid.UUID) (int, error)
	MarkExpanded(dbc dbctx.Context, id uuid.UUID) error
}

type graphNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphNodeRepo(db *gorm.DB, baseLog *logger.Logger) GraphNodeRepo {
	return &graphNodeRepo{db: db, log: baseLog.With("repo", "GraphNodeRepo")}
}

func (r *graphNodeRepo) Create(dbc dbctx.Context, nodes []*types.GraphNode) ([]*types.GraphNode, error) {
	if len(nodes) == 0 {
		return []*types.GraphNode{}, nil
	}
	const batchSize = 100
	if err := dbc.Conn(r.db).CreateInBatches(nodes, batchSize).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *graphNodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GraphNode, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var n types.GraphNode
	err := dbc.Conn(r.db).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *graphNodeRepo) ListByGraph(dbc dbctx.Context, graphID uuid.UUID) ([]*types.GraphNode, error) {
	var out []*types.GraphNode
	if graphID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("graph_id = ?", graphID).
		Order("depth_level ASC, sort_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *graphNodeRepo) ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.GraphNode, error) {
	var out []*types.GraphNode
	if parentID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("parent_id = ?", parentID).
		Order("sort_order ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *graphNodeRepo) CountByGraph(dbc dbctx.Context, graphID uuid.UUID) (int64, error) {
	var n int64
	if graphID == uuid.Nil {
		return 0, nil
	}
	err := dbc.Conn(r.db).Model(&types.GraphNode{}).Where("graph_id = ?", graphID).Count(&n).Error
	return n, err
}

// MaxDepthByGraph returns the deepest depth_level in the graph, or 0 when empty.
func (r *graphNodeRepo) MaxDepthByGraph(dbc dbctx.Context, graphID uuid.UUID) (int, error) {
	if graphID == uuid.Nil {
		return 0, nil
	}
	var deepest sql.NullInt64
	if err := dbc.Conn(r.db).
		Model(&types.GraphNode{}).
		Where("graph_id = ?", graphID).
		Select("MAX(depth_level)").
		Row().
		Scan(&deepest); err != nil {
		return 0, err
	}
	if !deepest.Valid {
		return 0, nil
	}
	return int(deepest.Int64), nil
}

func (r *graphNodeRepo) MarkExpanded(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.GraphNode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_expanded": true}).Error
}
