package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityPublic  = "public"
)

type KnowledgeBase struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Description   string    `gorm:"column:description;type:text" json:"description"`
	Visibility    string    `gorm:"column:visibility;not null;default:'private';index" json:"visibility"`
	DocumentCount int       `gorm:"column:document_count;not null;default:0" json:"document_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KnowledgeBase) TableName() string { return "knowledge_base" }

func (k *KnowledgeBase) BeforeCreate(*gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.Visibility == "" {
		k.Visibility = VisibilityPrivate
	}
	return nil
}

type KbCollaborator struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	KbID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_kb_collaborator" json:"kb_id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_kb_collaborator;index" json:"user_id"`
	Role   string    `gorm:"column:role;not null;default:'viewer'" json:"role"`

	CreatedAt time.Time `json:"created_at"`
}

func (KbCollaborator) TableName() string { return "kb_collaborator" }

func (c *KbCollaborator) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
