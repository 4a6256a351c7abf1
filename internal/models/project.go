package models

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	gorm.Model

	Name        string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null;default:'active'"` // "active", "completed", "overdue"
	DueDate     *time.Time
	TeamID      uint `gorm:"not null;index"`
	CreatorID   uint `gorm:"not null;index"`

	// Relationships
	Team    Team            `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Creator User            `gorm:"foreignKey:CreatorID"`
	Workers []ProjectWorker `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Tasks   []Task          `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
