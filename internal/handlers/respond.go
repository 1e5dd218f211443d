package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/models"
	"Bootcamp/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation: fiber.StatusBadRequest,
	services.KindNotFound:   fiber.StatusNotFound,
	services.KindForbidden:  fiber.StatusForbidden,
	services.KindConflict:   fiber.StatusConflict,
	services.KindStorage:    fiber.StatusInternalServerError,
	services.KindUpstream:   fiber.StatusInternalServerError,
}

// respondError writes a service error. Wrapped causes are logged and never
// sent to the client.
func respondError(c *fiber.Ctx, err error) error {
	var se *services.Error
	if !errors.As(err, &se) {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	status, ok := kindStatus[se.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": se.Message,
		"code":  se.Code,
	})
}

func outcomeStatus(o services.VerificationOutcome) int {
	switch o {
	case services.OutcomeSuccess:
		return fiber.StatusOK
	case services.OutcomePending:
		return fiber.StatusAccepted
	case services.OutcomeFailed:
		return fiber.StatusBadRequest
	case services.OutcomeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// bindJSON parses and validates a request body.
func bindJSON(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return &services.Error{Kind: services.KindValidation, Code: "invalid_body", Message: "Invalid request body"}
	}
	if err := models.Validator().Struct(req); err != nil {
		return &services.Error{Kind: services.KindValidation, Code: "invalid_body", Message: err.Error()}
	}
	return nil
}
