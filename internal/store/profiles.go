package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
)

// ProfilePatch names the profile columns an applicant may edit.
type ProfilePatch struct {
	FullName      *string
	WalletAddress *string
}

// UpdateUserProfile applies patch and returns the updated profile. Wallet
// addresses are stored lowercased.
func (s *GormStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.UserProfile, error) {
	updates := map[string]interface{}{}
	if patch.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*patch.FullName)
	}
	if patch.WalletAddress != nil {
		updates["wallet_address"] = strings.ToLower(strings.TrimSpace(*patch.WalletAddress))
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.UserProfile{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetUserProfile(ctx, id)
}
