package models

import (
	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// Attachment belongs polymorphically to a project, task, or comment.
// The core only records blob metadata; bytes live in the blob store.
type Attachment struct {
	gorm.Model

	ParentKind types.ParentKind `gorm:"not null;index:idx_attachment_parent"`
	ParentID   uint             `gorm:"not null;index:idx_attachment_parent"`
	UploaderID uint             `gorm:"not null;index"`
	Path       string           `gorm:"not null"`
	FileName   string           `gorm:"not null"`
	FileSize   int64            `gorm:"not null"`
	MimeType   string           `gorm:"not null"`

	// Relationships
	Uploader User `gorm:"foreignKey:UploaderID"`
}
