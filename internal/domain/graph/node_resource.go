package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NodeResource struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_node_resource" json:"node_id"`
	ResourceID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_node_resource" json:"resource_id"`
	RelevanceScore float64   `gorm:"column:relevance_score;not null;default:0" json:"relevance_score"`
	IsPrimary      bool      `gorm:"column:is_primary;not null;default:false" json:"is_primary"`

	CreatedAt time.Time `json:"created_at"`
}

func (NodeResource) TableName() string { return "node_resource" }

func (r *NodeResource) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
