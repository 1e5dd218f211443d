package handlers_test

import (
	"context"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"Bootcamp/internal/models"
)

func TestNotificationHandler(t *testing.T) {
	seed := func(t *testing.T, api *testAPI, owner uuid.UUID, n int) []uuid.UUID {
		t.Helper()
		var ids []uuid.UUID
		for i := 0; i < n; i++ {
			note := &models.Notification{
				UserProfileID: owner,
				Type:          models.NotificationPaymentConfirmed,
				Title:         "Payment Confirmed",
				Message:       "We received your payment.",
			}
			if err := api.store.CreateNotification(context.Background(), note); err != nil {
				t.Fatalf("seed notification: %v", err)
			}
			ids = append(ids, note.ID)
		}
		return ids
	}

	t.Run("Given two unread notifications When listing Then both are returned with the unread count", func(t *testing.T) {
		api := newTestAPI()
		seed(t, api, api.fx.User.ID, 2)
		seed(t, api, uuid.New(), 1)

		resp, body := api.do(t, "GET", "/api/notifications/", token(t, api.fx.User.ID, "user"), nil)

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		if body["count"] != float64(2) || body["unread_count"] != float64(2) {
			t.Errorf("unexpected counts %v", body)
		}
	})

	t.Run("Given one notification read When listing unread only Then the other remains", func(t *testing.T) {
		api := newTestAPI()
		ids := seed(t, api, api.fx.User.ID, 2)
		tok := token(t, api.fx.User.ID, "user")

		resp, _ := api.do(t, "PUT", "/api/notifications/"+ids[0].String()+"/read", tok, nil)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("mark read: expected 200, got %d", resp.StatusCode)
		}

		_, body := api.do(t, "GET", "/api/notifications/?unread_only=true", tok, nil)
		if body["count"] != float64(1) || body["unread_count"] != float64(1) {
			t.Errorf("unexpected counts %v", body)
		}
	})

	t.Run("Given another user's notification When marking it read Then 404 is returned", func(t *testing.T) {
		api := newTestAPI()
		ids := seed(t, api, uuid.New(), 1)

		resp, _ := api.do(t, "PUT", "/api/notifications/"+ids[0].String()+"/read", token(t, api.fx.User.ID, "user"), nil)

		if resp.StatusCode != fiber.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("Given unread notifications When marking all read Then none are unread", func(t *testing.T) {
		api := newTestAPI()
		seed(t, api, api.fx.User.ID, 3)
		tok := token(t, api.fx.User.ID, "user")

		resp, _ := api.do(t, "PUT", "/api/notifications/read-all", tok, nil)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		_, body := api.do(t, "GET", "/api/notifications/", tok, nil)
		if body["unread_count"] != float64(0) {
			t.Errorf("expected no unread, got %v", body)
		}
	})
}
