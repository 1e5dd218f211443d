package testutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateNotification"); err != nil {
		return err
	}
	if err := models.Validate(n); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRow, err)
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = s.tick()
	cp := *n
	s.Notes = append(s.Notes, &cp)
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userProfileID uuid.UUID, f store.NotificationFilter) ([]models.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListNotifications"); err != nil {
		return nil, 0, err
	}
	var (
		out    []models.Notification
		unread int64
	)
	for _, n := range s.Notes {
		if n.UserProfileID != userProfileID {
			continue
		}
		if !n.IsRead {
			unread++
		}
		if f.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, unread, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, unread, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userProfileID, id uuid.UUID) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkNotificationRead"); err != nil {
		return nil, err
	}
	for _, n := range s.Notes {
		if n.ID == id && n.UserProfileID == userProfileID {
			if !n.IsRead {
				now := s.tick()
				n.IsRead = true
				n.ReadAt = &now
			}
			cp := *n
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userProfileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkAllNotificationsRead"); err != nil {
		return err
	}
	for _, n := range s.Notes {
		if n.UserProfileID == userProfileID && !n.IsRead {
			now := s.tick()
			n.IsRead = true
			n.ReadAt = &now
		}
	}
	return nil
}

// NotificationsFor returns copies of a user's notifications in insert order.
func (s *Store) NotificationsFor(userProfileID uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.Notes {
		if n.UserProfileID == userProfileID {
			out = append(out, *n)
		}
	}
	return out
}
