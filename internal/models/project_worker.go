package models

import (
	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// ProjectWorker is the project membership edge. Role is either
// types.EdgeManager or types.EdgeMember; the project service keeps the
// manager edge unique per project.
type ProjectWorker struct {
	gorm.Model

	ProjectID uint       `gorm:"not null;uniqueIndex:idx_project_user"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_project_user"`
	Role      types.Role `gorm:"not null"`

	// Relationships
	Project Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	User    User    `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
