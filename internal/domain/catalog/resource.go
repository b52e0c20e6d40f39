package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resource is a learning resource (article, video, course) that can be
// attached to graph nodes.
type Resource struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	URL          string         `gorm:"column:url" json:"url"`
	ResourceType string         `gorm:"column:resource_type;not null;default:'article'" json:"resource_type"`
	Domain       string         `gorm:"column:domain;index" json:"domain"`
	Tags         datatypes.JSON `gorm:"column:tags" json:"tags"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	Source       string         `gorm:"column:source" json:"source"`
	UploadedBy   *uuid.UUID     `gorm:"type:uuid" json:"uploaded_by,omitempty"`
	QualityScore float64        `gorm:"column:quality_score;not null;default:0;index" json:"quality_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Resource) TableName() string { return "resource" }

func (r *Resource) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Resource) TagList() []string {
	if r == nil || len(r.Tags) == 0 {
		return nil
	}
	var tags []string
	_ = json.Unmarshal(r.Tags, &tags)
	return tags
}
