package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusAuditEntry is one row of the append-only sync trail. Rows are never
// updated. Confirmed marks a sync that found the target state already in place.
type StatusAuditEntry struct {
	ID                    uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"application_id"`
	UserProfileID         uuid.UUID         `gorm:"type:uuid;not null" json:"user_profile_id"`
	FromPaymentStatus     PaymentStatus     `gorm:"type:varchar(20)" json:"from_payment_status,omitempty"`
	ToPaymentStatus       PaymentStatus     `gorm:"type:varchar(20)" json:"to_payment_status,omitempty"`
	FromApplicationStatus ApplicationStatus `gorm:"type:varchar(20)" json:"from_application_status,omitempty"`
	ToApplicationStatus   ApplicationStatus `gorm:"type:varchar(20)" json:"to_application_status,omitempty"`
	FromEnrollmentStatus  EnrollmentStatus  `gorm:"type:varchar(20)" json:"from_enrollment_status,omitempty"`
	ToEnrollmentStatus    EnrollmentStatus  `gorm:"type:varchar(20)" json:"to_enrollment_status,omitempty"`
	Reason                string            `gorm:"type:text" json:"reason"`
	Confirmed             bool              `gorm:"default:false" json:"confirmed"`
	CreatedAt             time.Time         `gorm:"index" json:"created_at"`
}

func (StatusAuditEntry) TableName() string {
	return "application_status_audit"
}

func (e *StatusAuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
