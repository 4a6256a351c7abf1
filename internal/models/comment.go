package models

import (
	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// Comment belongs polymorphically to a project or a task. Its lifecycle
// follows the parent: deleting the parent deletes the comment and its
// attachments.
type Comment struct {
	gorm.Model

	Body       string           `gorm:"not null"`
	AuthorID   uint             `gorm:"not null;index"`
	ParentKind types.ParentKind `gorm:"not null;index:idx_comment_parent"`
	ParentID   uint             `gorm:"not null;index:idx_comment_parent"`

	// Relationships
	Author User `gorm:"foreignKey:AuthorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
