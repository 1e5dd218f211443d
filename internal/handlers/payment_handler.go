package handlers

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"Bootcamp/internal/middleware"
	"Bootcamp/internal/models"
	"Bootcamp/internal/services"
)

// SignatureVerifier checks a webhook body against the gateway signature.
type SignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type PaymentHandler struct {
	router   *services.Router
	verifier SignatureVerifier
}

func NewPaymentHandler(router *services.Router, verifier SignatureVerifier) *PaymentHandler {
	return &PaymentHandler{router: router, verifier: verifier}
}

type InitializePaymentRequest struct {
	ApplicationID string `json:"applicationId" validate:"required,uuid"`
}

type VerifyPaymentRequest struct {
	Reference       string `json:"reference"`
	ApplicationID   string `json:"applicationId" validate:"omitempty,uuid"`
	TransactionHash string `json:"transactionHash" validate:"omitempty,startswith=0x"`
	Method          string `json:"method" validate:"omitempty,oneof=paystack blockchain"`
}

// InitializePayment opens a gateway checkout for the caller's application.
func (h *PaymentHandler) InitializePayment(c *fiber.Ctx) error {
	req := new(InitializePaymentRequest)
	if err := bindJSON(c, req); err != nil {
		return respondError(c, err)
	}

	res, err := h.router.InitializePayment(c.UserContext(), uuid.MustParse(req.ApplicationID), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment initialized. Complete checkout to confirm your seat.",
		"payment": res,
	})
}

// VerifyPayment answers a client asking whether its payment went through.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	req := new(VerifyPaymentRequest)
	if err := bindJSON(c, req); err != nil {
		return respondError(c, err)
	}

	vr := services.VerifyRequest{
		Reference:       req.Reference,
		TransactionHash: req.TransactionHash,
		Method:          models.PaymentMethod(req.Method),
		CallerID:        middleware.UserID(c),
	}
	if req.ApplicationID != "" {
		vr.ApplicationID = uuid.MustParse(req.ApplicationID)
	}
	return h.verify(c, vr)
}

// VerifyByReference is the GET form used by the gateway callback page.
func (h *PaymentHandler) VerifyByReference(c *fiber.Ctx) error {
	return h.verify(c, services.VerifyRequest{
		Reference: c.Params("reference"),
		CallerID:  middleware.UserID(c),
	})
}

func (h *PaymentHandler) verify(c *fiber.Ctx, req services.VerifyRequest) error {
	res, err := h.router.VerifyPayment(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	if res.Outcome == services.OutcomePending && res.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(res.RetryAfter))
	}
	return c.Status(outcomeStatus(res.Outcome)).JSON(res)
}

// PaystackWebhook applies a signed gateway event. Only retryable failures
// answer 5xx so the gateway redelivers.
func (h *PaymentHandler) PaystackWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if !h.verifier.VerifyWebhookSignature(body, c.Get("x-paystack-signature")) {
		log.Printf("⚠️  Rejected webhook with bad signature from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var event services.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event payload",
		})
	}

	res, err := h.router.HandleGatewayEvent(c.UserContext(), event)
	if err != nil {
		if k := services.KindOf(err); k == services.KindStorage || k == services.KindUpstream {
			return respondError(c, err)
		}
		log.Printf("⚠️  Webhook %s for %s not applied: %v", event.Event, event.Data.Reference, err)
		return c.JSON(fiber.Map{"received": true, "applied": false})
	}

	out := fiber.Map{"received": true, "applied": res != nil}
	if res != nil {
		out["outcome"] = res.Outcome
	}
	return c.JSON(out)
}
