package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KbChunk is immutable after ingestion; it is only ever bulk-deleted with
// its document or knowledge base.
type KbChunk struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_kb_chunk_doc_index" json:"document_id"`
	ChunkIndex  int            `gorm:"column:chunk_index;not null;uniqueIndex:idx_kb_chunk_doc_index" json:"chunk_index"`
	Content     string         `gorm:"column:content;type:text;not null" json:"content"`
	HeadingPath string         `gorm:"column:heading_path" json:"heading_path"`
	TokenCount  int            `gorm:"column:token_count;not null;default:0" json:"token_count"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (KbChunk) TableName() string { return "kb_chunk" }

func (c *KbChunk) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
