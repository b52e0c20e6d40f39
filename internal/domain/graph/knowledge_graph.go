package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GraphStatusGenerating = "generating"
	GraphStatusCompleted  = "completed"
	GraphStatusFailed     = "failed"
)

// KnowledgeGraph is one generated knowledge tree and its summary counters.
type KnowledgeGraph struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID *uuid.UUID `gorm:"type:uuid;index" json:"topic_id,omitempty"`
	Version int        `gorm:"not null;default:1" json:"version"`

	Title   string `gorm:"column:title;not null" json:"title"`
	Summary string `gorm:"column:summary;type:text" json:"summary"`
	Status  string `gorm:"column:status;not null;index" json:"status"`

	LLMProvider string `gorm:"column:llm_provider" json:"llm_provider"`
	LLMModel    string `gorm:"column:llm_model" json:"llm_model"`

	NodeCount int `gorm:"column:node_count;not null;default:0" json:"node_count"`
	MaxDepth  int `gorm:"column:max_depth;not null;default:0" json:"max_depth"`

	CreatedBy *uuid.UUID `gorm:"type:uuid;index" json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KnowledgeGraph) TableName() string { return "knowledge_graph" }

func (g *KnowledgeGraph) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
