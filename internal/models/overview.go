package models

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationOverview is a row of the application_payment_overview view,
// the single query used to list applications and find reconciliation work.
type ApplicationOverview struct {
	ApplicationID      uuid.UUID         `json:"application_id"`
	UserProfileID      uuid.UUID         `json:"user_profile_id"`
	CohortID           string            `json:"cohort_id"`
	UserEmail          string            `json:"user_email"`
	PaymentStatus      PaymentStatus     `json:"payment_status"`
	ApplicationStatus  ApplicationStatus `json:"application_status"`
	StatusRowStatus    *PaymentStatus    `json:"status_row_status"`
	SuccessfulPayments int64             `json:"successful_payments"`
	HasEnrollment      bool              `json:"has_enrollment"`
	CreatedAt          time.Time         `json:"created_at"`
}

func (ApplicationOverview) TableName() string {
	return "application_payment_overview"
}

// NeedsReconciliation reports whether any of the derived invariants is broken.
func (o *ApplicationOverview) NeedsReconciliation() bool {
	if o.StatusRowStatus == nil || *o.StatusRowStatus != o.PaymentStatus {
		return true
	}
	if o.PaymentStatus == PaymentCompleted {
		if o.SuccessfulPayments == 0 {
			return true
		}
		if o.ApplicationStatus == ApplicationApproved && !o.HasEnrollment {
			return true
		}
	}
	return false
}

// OverviewViewSQL creates the overview view. Kept next to the struct so the
// columns stay in step.
const OverviewViewSQL = `
CREATE OR REPLACE VIEW application_payment_overview AS
SELECT
	a.id AS application_id,
	a.user_profile_id,
	a.cohort_id,
	a.user_email,
	a.payment_status,
	a.application_status,
	s.status AS status_row_status,
	(SELECT COUNT(*) FROM payment_transactions p
		WHERE p.application_id = a.id AND p.status = 'success') AS successful_payments,
	EXISTS (SELECT 1 FROM bootcamp_enrollments e
		WHERE e.user_profile_id = a.user_profile_id AND e.cohort_id = a.cohort_id) AS has_enrollment,
	a.created_at
FROM applications a
LEFT JOIN user_application_status s ON s.application_id = a.id`
