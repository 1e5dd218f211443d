package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"Bootcamp/internal/middleware"
	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

// NotificationStore is the part of the store the notification feed reads.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userProfileID uuid.UUID, f store.NotificationFilter) ([]models.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, userProfileID, id uuid.UUID) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userProfileID uuid.UUID) error
}

type NotificationHandler struct {
	store NotificationStore
}

func NewNotificationHandler(s NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: s}
}

type ListNotificationsQuery struct {
	Limit      int  `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int  `query:"offset" validate:"omitempty,min=0"`
	UnreadOnly bool `query:"unread_only"`
}

// GetNotifications retrieves notifications for the authenticated user
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	q := new(ListNotificationsQuery)
	if err := c.QueryParser(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid query parameters",
		})
	}
	if err := models.Validator().Struct(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	notifications, unread, err := h.store.ListNotifications(c.UserContext(), middleware.UserID(c), store.NotificationFilter{
		UnreadOnly: q.UnreadOnly,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve notifications",
		})
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
		"unread_count":  unread,
	})
}

// MarkAsRead marks a specific notification as read
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid notification ID",
		})
	}

	notification, err := h.store.MarkNotificationRead(c.UserContext(), middleware.UserID(c), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Notification not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark notification as read",
		})
	}

	return c.JSON(fiber.Map{
		"message":      "Notification marked as read",
		"notification": notification,
	})
}

// MarkAllAsRead marks all notifications as read for the user
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	if err := h.store.MarkAllNotificationsRead(c.UserContext(), middleware.UserID(c)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark all notifications as read",
		})
	}

	return c.JSON(fiber.Map{
		"message": "All notifications marked as read",
	})
}
