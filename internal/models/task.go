package models

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	gorm.Model

	Name        string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null;default:'pending'"` // "pending", "active", "completed", "overdue"
	Priority    string `gorm:"not null;default:'medium'"`  // "low", "medium", "high"
	DueDate     *time.Time
	ProjectID   uint `gorm:"not null;index"`
	AssigneeID  uint `gorm:"not null;index"`

	// Relationships
	Project  Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Assignee User    `gorm:"foreignKey:AssigneeID"`
}
