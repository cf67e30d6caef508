package models

import "time"

// Role represents user roles with numeric primary key. The four roles
// (officer, judge, lawyer, administrator) are seeded at migration time and
// never created through the API.
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}
