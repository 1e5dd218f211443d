package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentEnrolled, EnrollmentCompleted, EnrollmentDropped, EnrollmentSuspended:
		return true
	}
	return false
}

// Enrollment is unique per (user, cohort); a duplicate insert means the user
// is already enrolled.
type Enrollment struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserProfileID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_enrollment_user_cohort,priority:1" json:"user_profile_id" validate:"required"`
	CohortID         string           `gorm:"not null;uniqueIndex:ux_enrollment_user_cohort,priority:2" json:"cohort_id" validate:"required"`
	ApplicationID    *uuid.UUID       `gorm:"type:uuid;index" json:"application_id,omitempty"`
	EnrollmentStatus EnrollmentStatus `gorm:"type:varchar(20);not null;default:'enrolled'" json:"enrollment_status" validate:"required,oneof=enrolled completed dropped suspended"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "bootcamp_enrollments"
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now()
	}
	return nil
}
