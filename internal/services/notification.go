package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
)

// NotificationService writes in-app notifications for applicants.
type NotificationService struct {
	store Store
}

func NewNotificationService(s Store) *NotificationService {
	return &NotificationService{store: s}
}

// CreateNotification creates a new notification
func (s *NotificationService) CreateNotification(ctx context.Context, userProfileID uuid.UUID, notifType models.NotificationType, title, message string, data map[string]interface{}) error {
	var raw []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		raw = b
	}

	n := &models.Notification{
		UserProfileID: userProfileID,
		Type:          notifType,
		Title:         title,
		Message:       message,
		Data:          raw,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return storageError("create notification", err)
	}
	return nil
}

// NotifyPaymentConfirmed tells the applicant their payment landed and, when
// it happened, that they are enrolled.
func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, app *models.Application, reference string, enrolled bool) error {
	kind := models.NotificationPaymentConfirmed
	message := fmt.Sprintf("We received your payment for %s.", app.CohortID)
	if enrolled {
		kind = models.NotificationEnrolled
		message = fmt.Sprintf("Your payment is confirmed and you are enrolled in %s.", app.CohortID)
	}
	return s.CreateNotification(ctx, app.UserProfileID, kind, "Payment Confirmed", message, map[string]interface{}{
		"application_id": app.ID.String(),
		"reference":      reference,
	})
}

// NotifyPaymentFailed tells the applicant the gateway declined the payment.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, app *models.Application, reference string) error {
	return s.CreateNotification(ctx, app.UserProfileID, models.NotificationPaymentFailed,
		"Payment Failed",
		"Your payment could not be completed. You can try again from your application.",
		map[string]interface{}{
			"application_id": app.ID.String(),
			"reference":      reference,
		},
	)
}

// NotifyKeyGrantDelayed tells a paid applicant their membership key is late.
func (s *NotificationService) NotifyKeyGrantDelayed(ctx context.Context, app *models.Application) error {
	return s.CreateNotification(ctx, app.UserProfileID, models.NotificationKeyGrantDelayed,
		"Membership Key Delayed",
		"Your payment is confirmed but issuing your membership key is taking longer than usual. No action is needed.",
		map[string]interface{}{
			"application_id": app.ID.String(),
			"cohort_id":      app.CohortID,
		},
	)
}
