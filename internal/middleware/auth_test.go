package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", Protected(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c).String())
	})
	app.Get("/admin", Protected(testSecret), AdminOnly(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestProtected(t *testing.T) {
	userID := uuid.New()
	valid := jwt.MapClaims{
		"user_id": userID.String(),
		"email":   "ada@example.com",
		"role":    "user",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", valid), fiber.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(-time.Hour).Unix(),
		}), fiber.StatusUnauthorized},
		{"numeric subject", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"user_id": 42,
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), fiber.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, valid), fiber.StatusOK},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	app := newApp()
	for role, want := range map[string]int{"user": fiber.StatusForbidden, "admin": fiber.StatusNoContent} {
		t.Run(role, func(t *testing.T) {
			tok := signToken(t, testSecret, jwt.MapClaims{
				"user_id": uuid.NewString(),
				"role":    role,
				"exp":     time.Now().Add(time.Hour).Unix(),
			})
			req := httptest.NewRequest("GET", "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != want {
				t.Errorf("status = %d, want %d", resp.StatusCode, want)
			}
		})
	}
}
