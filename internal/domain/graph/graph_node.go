package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NodeTypeRoot   = "root"
	NodeTypeBranch = "branch"
	NodeTypeLeaf   = "leaf"
)

// GraphNode is one persisted tree node. ParentID is nil only for the root.
type GraphNode struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	GraphID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"graph_id"`
	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`

	NodeKey     string `gorm:"column:node_key;not null;index" json:"node_key"`
	Label       string `gorm:"column:label;not null" json:"label"`
	Description string `gorm:"column:description;type:text" json:"description"`
	NodeType    string `gorm:"column:node_type;not null" json:"node_type"`

	DepthLevel   int  `gorm:"column:depth_level;not null;default:0" json:"depth_level"`
	SortOrder    int  `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	IsExpandable bool `gorm:"column:is_expandable;not null;default:false" json:"is_expandable"`
	IsExpanded   bool `gorm:"column:is_expanded;not null;default:false" json:"is_expanded"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GraphNode) TableName() string { return "graph_node" }

func (n *GraphNode) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
