package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
)

// NotificationFilter pages a user's notifications.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.validate(n); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(n).Error)
}

// ListNotifications returns the newest notifications first with the total
// unread count.
func (s *GormStore) ListNotifications(ctx context.Context, userProfileID uuid.UUID, f NotificationFilter) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Where("user_profile_id = ?", userProfileID)
	if f.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, translate(err)
	}

	var unread int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_profile_id = ? AND is_read = ?", userProfileID, false).
		Count(&unread).Error
	return rows, unread, translate(err)
}

// MarkNotificationRead marks one of the user's notifications read. Marking
// an already read notification keeps its first ReadAt.
func (s *GormStore) MarkNotificationRead(ctx context.Context, userProfileID, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_profile_id = ?", id, userProfileID).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	if n.IsRead {
		return &n, nil
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&n).Updates(map[string]interface{}{
		"is_read": true,
		"read_at": now,
	}).Error
	if err != nil {
		return nil, translate(err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return &n, nil
}

func (s *GormStore) MarkAllNotificationsRead(ctx context.Context, userProfileID uuid.UUID) error {
	return translate(s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_profile_id = ? AND is_read = ?", userProfileID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error)
}
