package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

type EnrollmentResult struct {
	Success       bool               `json:"success"`
	AlreadyExists bool               `json:"already_exists"`
	Enrollment    *models.Enrollment `json:"enrollment,omitempty"`
}

type EnrollmentService struct {
	store Store
}

func NewEnrollmentService(s Store) *EnrollmentService {
	return &EnrollmentService{store: s}
}

// CreateEnrollmentForCompletedApplication enrolls the applicant in the
// application's cohort. An existing enrollment is reported, not an error.
func (s *EnrollmentService) CreateEnrollmentForCompletedApplication(ctx context.Context, applicationID uuid.UUID) (*EnrollmentResult, error) {
	if applicationID == uuid.Nil {
		return nil, validationError("missing_application_id", "application id is required")
	}

	app, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("application_not_found", "application does not exist")
	}
	if err != nil {
		return nil, storageError("load application", err)
	}
	if app.PaymentStatus != models.PaymentCompleted {
		return nil, validationError("payment_not_completed", "application payment is not completed")
	}

	enrollment := &models.Enrollment{
		UserProfileID:    app.UserProfileID,
		CohortID:         app.CohortID,
		ApplicationID:    &app.ID,
		EnrollmentStatus: models.EnrollmentEnrolled,
	}
	err = s.store.CreateEnrollment(ctx, enrollment)
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := s.store.GetEnrollment(ctx, app.UserProfileID, app.CohortID)
		if err != nil {
			return nil, storageError("load enrollment", err)
		}
		return &EnrollmentResult{Success: true, AlreadyExists: true, Enrollment: existing}, nil
	}
	if err != nil {
		return nil, storageError("create enrollment", err)
	}

	log.Printf("🎓 Enrolled user %s in cohort %s", app.UserProfileID, app.CohortID)
	return &EnrollmentResult{Success: true, Enrollment: enrollment}, nil
}
