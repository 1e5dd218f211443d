package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string
type ApplicationStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentProcessing PaymentStatus = "processing"
)

const (
	ApplicationDraft     ApplicationStatus = "draft"
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentProcessing:
		return true
	}
	return false
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationDraft, ApplicationSubmitted, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

type Application struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserProfileID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_profile_id" validate:"required"`
	CohortID          string            `gorm:"not null;index" json:"cohort_id" validate:"required"`
	UserEmail         string            `json:"user_email" validate:"omitempty,email"`
	UserName          string            `json:"user_name"`
	PaymentMethod     PaymentMethod     `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaymentStatus     PaymentStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status" validate:"required,oneof=pending completed failed processing"`
	ApplicationStatus ApplicationStatus `gorm:"type:varchar(20);not null;default:'draft'" json:"application_status" validate:"required,oneof=draft submitted approved rejected"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Cohort Cohort `gorm:"foreignKey:CohortID" json:"cohort,omitempty" validate:"-"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsApproved reports whether the application has been accepted.
func (a *Application) IsApproved() bool {
	return a.ApplicationStatus == ApplicationApproved
}

// UserApplicationStatus is the user-facing status row for an application.
// Its Status mirrors Application.PaymentStatus.
type UserApplicationStatus struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID uuid.UUID     `gorm:"type:uuid;uniqueIndex;not null" json:"application_id" validate:"required"`
	UserProfileID uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_profile_id" validate:"required"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null" json:"status" validate:"required,oneof=pending completed failed processing"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (UserApplicationStatus) TableName() string {
	return "user_application_status"
}

func (s *UserApplicationStatus) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
