package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Topic struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	NormalizedName string    `gorm:"column:normalized_name;not null;uniqueIndex" json:"normalized_name"`
	Domain         string    `gorm:"column:domain;index" json:"domain"`
	SearchCount    int       `gorm:"column:search_count;not null;default:0" json:"search_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Topic) TableName() string { return "topic" }

func (t *Topic) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
