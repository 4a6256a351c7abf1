package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is one row per (event, recipient). ReadAt nil means
// unread; the row is created once and mutated only by mark-as-read.
type Notification struct {
	gorm.Model

	UserID uint           `gorm:"not null;index"`
	Type   string         `gorm:"not null"` // "task_assigned", "comment_created"
	Data   datatypes.JSON `gorm:"type:jsonb"`
	ReadAt *time.Time

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
