package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"Bootcamp/internal/middleware"
	"Bootcamp/internal/models"
	"Bootcamp/internal/services"
	"Bootcamp/internal/store"
)

// OverviewLister reads the application payment overview.
type OverviewLister interface {
	ListOverview(ctx context.Context, f store.OverviewFilter) ([]models.ApplicationOverview, error)
}

type ReconcileHandler struct {
	reconciler *services.Reconciler
	sweeper    *services.Sweeper
	overview   OverviewLister
}

func NewReconcileHandler(reconciler *services.Reconciler, sweeper *services.Sweeper, overview OverviewLister) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, sweeper: sweeper, overview: overview}
}

type AdminReconcileRequest struct {
	ApplicationID string   `json:"applicationId" validate:"required,uuid"`
	Actions       []string `json:"actions" validate:"omitempty,dive,required"`
}

type GrantKeyRequest struct {
	ApplicationID string `json:"applicationId" validate:"required,uuid"`
}

type ListApplicationsQuery struct {
	PaymentStatus string `query:"paymentStatus" validate:"omitempty,oneof=pending completed failed processing"`
	Inconsistent  bool   `query:"inconsistent"`
	Limit         int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Offset        int    `query:"offset" validate:"omitempty,min=0"`
}

// ReconcileOwnApplication lets a user repair their own application.
func (h *ReconcileHandler) ReconcileOwnApplication(c *fiber.Ctx) error {
	appID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application ID",
		})
	}

	report, err := h.reconciler.ReconcileForUser(c.UserContext(), appID, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// Reconcile runs a full diagnosis, or only the named actions when given.
func (h *ReconcileHandler) Reconcile(c *fiber.Ctx) error {
	req := new(AdminReconcileRequest)
	if err := bindJSON(c, req); err != nil {
		return respondError(c, err)
	}
	appID := uuid.MustParse(req.ApplicationID)

	var (
		report *services.ReconcileReport
		err    error
	)
	if len(req.Actions) > 0 {
		report, err = h.reconciler.RunActions(c.UserContext(), appID, req.Actions)
	} else {
		report, err = h.reconciler.ReconcileApplicationStatus(c.UserContext(), appID, uuid.Nil)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// GrantKey retries the membership key grant for one application.
func (h *ReconcileHandler) GrantKey(c *fiber.Ctx) error {
	req := new(GrantKeyRequest)
	if err := bindJSON(c, req); err != nil {
		return respondError(c, err)
	}

	report, err := h.reconciler.RunActions(c.UserContext(), uuid.MustParse(req.ApplicationID), []string{services.ActionGrantKey})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// Sweep runs one reconciliation sweep synchronously.
func (h *ReconcileHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeper.RunOnce(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// ListApplications pages through the overview view.
func (h *ReconcileHandler) ListApplications(c *fiber.Ctx) error {
	q := new(ListApplicationsQuery)
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
	if q.Limit == 0 {
		q.Limit = 50
	}

	rows, err := h.overview.ListOverview(c.UserContext(), store.OverviewFilter{
		PaymentStatus:    models.PaymentStatus(q.PaymentStatus),
		OnlyInconsistent: q.Inconsistent,
		Limit:            q.Limit,
		Offset:           q.Offset,
	})
	if err != nil {
		return respondError(c, &services.Error{Kind: services.KindStorage, Code: "storage_failure", Message: "list applications", Err: err})
	}

	apps := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		apps = append(apps, fiber.Map{
			"application":          rows[i],
			"needs_reconciliation": rows[i].NeedsReconciliation(),
		})
	}
	return c.JSON(fiber.Map{
		"applications": apps,
		"pagination": fiber.Map{
			"limit":  q.Limit,
			"offset": q.Offset,
			"count":  len(rows),
		},
	})
}
