package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"Bootcamp/internal/models"
)

func TestRouter_Notifications(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a confirmed gateway payment When processed Then the applicant is told they are enrolled", func(t *testing.T) {
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "n-1", models.TransactionPending, h.now.Add(-time.Minute))
		h.gateway.Set("n-1", "success")

		if _, err := h.router.VerifyPayment(ctx, VerifyRequest{Reference: "n-1"}); err != nil {
			t.Fatalf("VerifyPayment failed: %v", err)
		}

		notes := h.store.NotificationsFor(fx.User.ID)
		if len(notes) != 1 || notes[0].Type != models.NotificationEnrolled {
			t.Fatalf("expected one enrollment notification, got %+v", notes)
		}
	})

	t.Run("Given the key grant is exhausted When processed Then a delay notification follows the confirmation", func(t *testing.T) {
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "n-2", models.TransactionPending, h.now.Add(-time.Minute))
		h.gateway.Set("n-2", "success")
		h.chain.AlwaysFail = errRPC

		if _, err := h.router.VerifyPayment(ctx, VerifyRequest{Reference: "n-2"}); err != nil {
			t.Fatalf("VerifyPayment failed: %v", err)
		}

		notes := h.store.NotificationsFor(fx.User.ID)
		if len(notes) != 2 || notes[1].Type != models.NotificationKeyGrantDelayed {
			t.Fatalf("expected confirmation then delay, got %+v", notes)
		}
	})

	t.Run("Given an abandoned payment When verified Then a failure notification is written once", func(t *testing.T) {
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "n-3", models.TransactionPending, h.now.Add(-time.Minute))
		h.gateway.Set("n-3", "abandoned")

		for i := 0; i < 2; i++ {
			if _, err := h.router.VerifyPayment(ctx, VerifyRequest{Reference: "n-3"}); err != nil {
				t.Fatalf("VerifyPayment failed: %v", err)
			}
		}

		notes := h.store.NotificationsFor(fx.User.ID)
		if len(notes) != 1 || notes[0].Type != models.NotificationPaymentFailed {
			t.Fatalf("expected one failure notification, got %+v", notes)
		}
	})

	t.Run("Given notifications cannot be stored When processed Then the payment still succeeds", func(t *testing.T) {
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "n-4", models.TransactionPending, h.now.Add(-time.Minute))
		h.gateway.Set("n-4", "success")
		h.store.FailOn("CreateNotification", errors.New("disk full"))

		res, err := h.router.VerifyPayment(ctx, VerifyRequest{Reference: "n-4"})

		if err != nil || res.Outcome != OutcomeSuccess {
			t.Fatalf("expected success, got %+v, %v", res, err)
		}
		step, ok := StepReport{Results: res.Steps}.Result("notify_user")
		if !ok || step.Status != StepFailed {
			t.Errorf("expected failed notify_user step, got %+v", step)
		}
	})
}
