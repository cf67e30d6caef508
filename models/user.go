package models

import (
	"time"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null"`
	Name           string     `gorm:"size:255"`
	Email          string     `gorm:"size:255"`
	// WalletAddress is the user's ledger identity used as the collector address
	// when anchoring evidence. Optional; the seal workflow substitutes the
	// configured default collector address when it is empty.
	WalletAddress string     `gorm:"size:64"`
	Evidence      []Evidence `gorm:"foreignKey:CollectorID"`
	RoleID        *uint      `gorm:"index"`
	Role          Role       `gorm:"foreignKey:RoleID;references:ID"`
}
