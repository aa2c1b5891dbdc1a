package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Name      string    `gorm:"default:''"`
	Email     string    `gorm:"unique;not null"`
	Role      string    `gorm:"default:'REVIEWER'"` // REVIEWER, ADMIN
	Password  string    `gorm:"not null"`
	LastLogin time.Time `gorm:"default:NULL"`
	IsDeleted bool      `gorm:"default:false"`
}
