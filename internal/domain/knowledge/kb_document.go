package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

type KbDocument struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	KbID         uuid.UUID `gorm:"type:uuid;not null;index" json:"kb_id"`
	Title        string    `gorm:"column:title;not null" json:"title"`
	FileType     string    `gorm:"column:file_type;not null" json:"file_type"`
	FilePath     string    `gorm:"column:file_path;not null" json:"file_path"`
	FileSize     int64     `gorm:"column:file_size;not null;default:0" json:"file_size"`
	Status       string    `gorm:"column:status;not null;index" json:"status"`
	TokenCount   int       `gorm:"column:token_count;not null;default:0" json:"token_count"`
	ErrorMessage string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KbDocument) TableName() string { return "kb_document" }

func (d *KbDocument) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DocumentStatusPending
	}
	return nil
}
