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

// ProfileStore reads and edits applicant profiles.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, patch store.ProfilePatch) (*models.UserProfile, error)
}

type ProfileHandler struct {
	store ProfileStore
}

func NewProfileHandler(s ProfileStore) *ProfileHandler {
	return &ProfileHandler{store: s}
}

// UpdateProfileRequest links the wallet membership keys are granted to.
type UpdateProfileRequest struct {
	FullName      *string `json:"full_name" validate:"omitempty,min=2,max=120"`
	WalletAddress *string `json:"wallet_address" validate:"omitempty,eth_addr"`
}

// GetUserProfile retrieves the authenticated user's profile
func (h *ProfileHandler) GetUserProfile(c *fiber.Ctx) error {
	user, err := h.store.GetUserProfile(c.UserContext(), middleware.UserID(c))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}

	return c.JSON(fiber.Map{
		"user": profileView(user),
	})
}

// UpdateUserProfile updates the name or linked wallet
func (h *ProfileHandler) UpdateUserProfile(c *fiber.Ctx) error {
	req := new(UpdateProfileRequest)
	if err := bindJSON(c, req); err != nil {
		return respondError(c, err)
	}
	if req.FullName == nil && req.WalletAddress == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Nothing to update",
		})
	}

	user, err := h.store.UpdateUserProfile(c.UserContext(), middleware.UserID(c), store.ProfilePatch{
		FullName:      req.FullName,
		WalletAddress: req.WalletAddress,
	})
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update profile",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    profileView(user),
	})
}

func profileView(u *models.UserProfile) fiber.Map {
	return fiber.Map{
		"id":             u.ID,
		"full_name":      u.FullName,
		"email":          u.Email,
		"wallet_address": u.WalletAddress,
		"has_wallet":     u.HasWallet(),
		"role":           u.Role,
		"created_at":     u.CreatedAt,
		"updated_at":     u.UpdatedAt,
	}
}
