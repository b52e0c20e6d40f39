package graph

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type NodeResourceRepo interface {
	Create(dbc dbctx.Context, rows []*types.NodeResource) ([]*types.NodeResource, error)
	ListByNodeIDs(dbc dbctx.Context, nodeIDs []uuid.UUID) ([]*types.NodeResource, error)
}

type nodeResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeResourceRepo(db *gorm.DB, baseLog *logger.Logger) NodeResourceRepo {
	return &nodeResourceRepo{db: db, log: baseLog.With("repo", "NodeResourceRepo")}
}

// Create skips rows that would duplicate an existing (node_id, resource_id) pair.
func (r *nodeResourceRepo) Create(dbc dbctx.Context, rows []*types.NodeResource) ([]*types.NodeResource, error) {
	if len(rows) == 0 {
		return []*types.NodeResource{}, nil
	}
	if err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "node_id"}, {Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *nodeResourceRepo) ListByNodeIDs(dbc dbctx.Context, nodeIDs []uuid.UUID) ([]*types.NodeResource, error) {
	var out []*types.NodeResource
	if len(nodeIDs) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("node_id IN ?", nodeIDs).
		Order("node_id, relevance_score DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
