package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationPaymentConfirmed NotificationType = "payment_confirmed"
	NotificationPaymentFailed    NotificationType = "payment_failed"
	NotificationEnrolled         NotificationType = "enrollment_created"
	NotificationKeyGrantDelayed  NotificationType = "key_grant_delayed"
)

// Notification is an in-app message shown to the applicant.
type Notification struct {
	ID            uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	UserProfileID uuid.UUID        `json:"user_profile_id" gorm:"type:uuid;not null;index" validate:"required"`
	Type          NotificationType `json:"type" gorm:"type:varchar(50);not null" validate:"required"`
	Title         string           `json:"title" gorm:"type:varchar(255);not null" validate:"required"`
	Message       string           `json:"message" gorm:"type:text;not null" validate:"required"`
	IsRead        bool             `json:"is_read" gorm:"default:false;index"`
	Data          datatypes.JSON   `json:"data" gorm:"type:jsonb"`
	CreatedAt     time.Time        `json:"created_at"`
	ReadAt        *time.Time       `json:"read_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate hook
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
