package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserProfile struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	FullName      string    `json:"full_name"`
	WalletAddress string    `gorm:"index" json:"wallet_address,omitempty"`
	Role          string    `gorm:"default:'user'" json:"role"` // 'user' or 'admin'
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// BeforeCreate hook to set id and default role
func (u *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = "user"
	}
	return nil
}

// IsAdmin checks if user has admin role
func (u *UserProfile) IsAdmin() bool {
	return u.Role == "admin"
}

// HasWallet reports whether the user linked a wallet for key grants.
func (u *UserProfile) HasWallet() bool {
	return u.WalletAddress != ""
}
