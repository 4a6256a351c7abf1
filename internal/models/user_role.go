package models

import (
	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// UserRole is one global role label held by a user. Rows are written
// only through the roles directory so the table always mirrors the
// edge-roles the user actually holds somewhere.
type UserRole struct {
	gorm.Model

	UserID uint       `gorm:"not null;uniqueIndex:idx_user_role"`
	Role   types.Role `gorm:"not null;uniqueIndex:idx_user_role"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
