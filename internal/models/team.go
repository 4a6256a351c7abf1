package models

import "gorm.io/gorm"

type Team struct {
	gorm.Model

	Name    string `gorm:"not null"`
	OwnerID uint   `gorm:"not null;index"`

	// Relationships
	Owner       User             `gorm:"foreignKey:OwnerID"`
	Memberships []TeamMembership `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Projects    []Project        `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
