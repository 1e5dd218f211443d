package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

type ReconcileState string

const (
	StateOrphaned             ReconcileState = "orphaned"
	StateDrifted              ReconcileState = "drifted"
	StateMissingPaymentRecord ReconcileState = "missing_payment_record"
	StateMissingEnrollment    ReconcileState = "missing_enrollment"
	StateConsistent           ReconcileState = "consistent"
)

const (
	ActionCreateMissingStatus = "create_missing_status"
	ActionSyncStatus          = "sync_status"
	ActionCreatePaymentRecord = "create_payment_record"
	ActionCreateEnrollment    = "create_enrollment"
	ActionGrantKey            = "grant_key"
)

var stateActions = map[ReconcileState]string{
	StateOrphaned:             ActionCreateMissingStatus,
	StateDrifted:              ActionSyncStatus,
	StateMissingPaymentRecord: ActionCreatePaymentRecord,
	StateMissingEnrollment:    ActionCreateEnrollment,
}

// KnownAction reports whether name is an action RunActions accepts.
func KnownAction(name string) bool {
	switch name {
	case ActionCreateMissingStatus, ActionSyncStatus, ActionCreatePaymentRecord, ActionCreateEnrollment, ActionGrantKey:
		return true
	}
	return false
}

type ActionResult struct {
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Code    string         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ReconcileSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ReconcileReport struct {
	ApplicationID uuid.UUID        `json:"application_id"`
	States        []ReconcileState `json:"states"`
	Actions       []ActionResult   `json:"actions"`
	Summary       ReconcileSummary `json:"summary"`
	Message       string           `json:"message"`
}

// Consistent reports whether diagnosis found nothing to repair.
func (r *ReconcileReport) Consistent() bool {
	return len(r.States) == 1 && r.States[0] == StateConsistent
}

// Diagnosis is a snapshot of everything derived from one application.
type Diagnosis struct {
	Application *models.Application
	StatusRow   *models.UserApplicationStatus
	Payment     *models.PaymentTransaction
	Enrollment  *models.Enrollment
	States      []ReconcileState
}

type Reconciler struct {
	store       Store
	sync        *StatusSync
	enrollments *EnrollmentService
	grants      *KeyGrantService
	now         func() time.Time
}

func NewReconciler(s Store, sync *StatusSync, enrollments *EnrollmentService, grants *KeyGrantService) *Reconciler {
	return &Reconciler{store: s, sync: sync, enrollments: enrollments, grants: grants, now: time.Now}
}

// Diagnose loads an application and classifies its derived state.
func (r *Reconciler) Diagnose(ctx context.Context, applicationID uuid.UUID) (*Diagnosis, error) {
	if applicationID == uuid.Nil {
		return nil, validationError("missing_application_id", "application id is required")
	}
	app, err := r.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("application_not_found", "application does not exist")
	}
	if err != nil {
		return nil, storageError("load application", err)
	}

	d := &Diagnosis{Application: app}

	if d.StatusRow, err = r.store.GetApplicationStatus(ctx, app.ID); ignoreNotFound(err) != nil {
		return nil, storageError("load status row", err)
	}
	if d.Payment, err = r.store.SuccessfulPaymentForApplication(ctx, app.ID); ignoreNotFound(err) != nil {
		return nil, storageError("load payment", err)
	}
	if d.Enrollment, err = r.store.GetEnrollment(ctx, app.UserProfileID, app.CohortID); ignoreNotFound(err) != nil {
		return nil, storageError("load enrollment", err)
	}

	switch {
	case d.StatusRow == nil:
		d.States = append(d.States, StateOrphaned)
	case d.StatusRow.Status != app.PaymentStatus:
		d.States = append(d.States, StateDrifted)
	}
	if app.PaymentStatus == models.PaymentCompleted {
		if d.Payment == nil {
			d.States = append(d.States, StateMissingPaymentRecord)
		}
		if app.IsApproved() && d.Enrollment == nil {
			d.States = append(d.States, StateMissingEnrollment)
		}
	}
	if len(d.States) == 0 {
		d.States = []ReconcileState{StateConsistent}
	}
	return d, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ReconcileApplicationStatus diagnoses an application and runs the repair
// for every inconsistency found. Individual repair failures are reported,
// not returned.
func (r *Reconciler) ReconcileApplicationStatus(ctx context.Context, applicationID, userProfileID uuid.UUID) (*ReconcileReport, error) {
	d, err := r.Diagnose(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if userProfileID != uuid.Nil && d.Application.UserProfileID != userProfileID {
		return nil, validationError("user_mismatch", "application belongs to another user")
	}

	var actions []string
	for _, st := range d.States {
		if a, ok := stateActions[st]; ok {
			actions = append(actions, a)
		}
	}

	report := r.run(ctx, d, actions)
	report.States = d.States
	switch {
	case len(actions) == 0:
		report.Message = "no action needed"
	case report.Summary.Failed == 0:
		report.Message = "reconciled"
	default:
		report.Message = fmt.Sprintf("%d of %d repairs failed", report.Summary.Failed, report.Summary.Total)
	}
	log.Printf("🧾 Reconciled application %s: states=%v %s", applicationID, d.States, report.Message)
	return report, nil
}

// ReconcileForUser is the self-service entry point; the caller must own
// the application.
func (r *Reconciler) ReconcileForUser(ctx context.Context, applicationID, callerID uuid.UUID) (*ReconcileReport, error) {
	if callerID == uuid.Nil {
		return nil, forbiddenError("authentication required")
	}
	app, err := r.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("application_not_found", "application does not exist")
	}
	if err != nil {
		return nil, storageError("load application", err)
	}
	if app.UserProfileID != callerID {
		return nil, forbiddenError("application belongs to another user")
	}
	return r.ReconcileApplicationStatus(ctx, applicationID, callerID)
}

// RunActions runs the named repairs in order. Each action checks its own
// precondition, so asking for an unnecessary repair is a successful no-op.
func (r *Reconciler) RunActions(ctx context.Context, applicationID uuid.UUID, actions []string) (*ReconcileReport, error) {
	if len(actions) == 0 {
		return nil, validationError("missing_actions", "at least one action is required")
	}
	for _, a := range actions {
		if !KnownAction(a) {
			return nil, validationError("unknown_action", "unknown action "+a)
		}
	}
	d, err := r.Diagnose(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	report := r.run(ctx, d, actions)
	report.States = d.States
	report.Message = fmt.Sprintf("%d succeeded, %d failed", report.Summary.Succeeded, report.Summary.Failed)
	return report, nil
}

func (r *Reconciler) run(ctx context.Context, d *Diagnosis, actions []string) *ReconcileReport {
	steps := make([]Step, 0, len(actions))
	for _, a := range actions {
		steps = append(steps, Step{Name: a, Run: r.action(d, a)})
	}
	result := RunSteps(ctx, steps...)

	report := &ReconcileReport{ApplicationID: d.Application.ID, Actions: []ActionResult{}}
	for _, res := range result.Results {
		ar := ActionResult{
			Action:  res.Name,
			Success: res.Status == StepSucceeded,
			Code:    res.Code,
			Error:   res.Error,
			Details: res.Details,
		}
		report.Actions = append(report.Actions, ar)
		report.Summary.Total++
		if ar.Success {
			report.Summary.Succeeded++
		} else {
			report.Summary.Failed++
		}
	}
	return report
}

func (r *Reconciler) action(d *Diagnosis, name string) func(context.Context) (map[string]any, error) {
	switch name {
	case ActionCreateMissingStatus:
		return func(ctx context.Context) (map[string]any, error) { return r.createMissingStatus(ctx, d) }
	case ActionSyncStatus:
		return func(ctx context.Context) (map[string]any, error) { return r.syncStatus(ctx, d) }
	case ActionCreatePaymentRecord:
		return func(ctx context.Context) (map[string]any, error) { return r.createPaymentRecord(ctx, d) }
	case ActionCreateEnrollment:
		return func(ctx context.Context) (map[string]any, error) { return r.createEnrollment(ctx, d) }
	default:
		return func(ctx context.Context) (map[string]any, error) { return r.grantKey(ctx, d) }
	}
}

func (r *Reconciler) createMissingStatus(ctx context.Context, d *Diagnosis) (map[string]any, error) {
	if d.StatusRow != nil {
		return map[string]any{"noop": "status row exists"}, nil
	}
	status := d.Application.PaymentStatus
	state, err := r.sync.SyncApplicationStatus(ctx, SyncRequest{
		ApplicationID: d.Application.ID,
		PaymentStatus: &status,
		Reason:        "reconcile: create missing status row",
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": state.StatusRowStatus}, nil
}

func (r *Reconciler) syncStatus(ctx context.Context, d *Diagnosis) (map[string]any, error) {
	if d.StatusRow != nil && d.StatusRow.Status == d.Application.PaymentStatus {
		return map[string]any{"noop": "status row in sync"}, nil
	}
	before := ""
	if d.StatusRow != nil {
		before = string(d.StatusRow.Status)
	}
	status := d.Application.PaymentStatus
	if _, err := r.sync.SyncApplicationStatus(ctx, SyncRequest{
		ApplicationID: d.Application.ID,
		PaymentStatus: &status,
		Reason:        "reconcile: status row drifted from " + before,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"before": before, "after": status}, nil
}

// createPaymentRecord synthesizes the success row a completed application
// is missing. The reference is derived from the application so a second
// run cannot insert another.
func (r *Reconciler) createPaymentRecord(ctx context.Context, d *Diagnosis) (map[string]any, error) {
	app := d.Application
	if app.PaymentStatus != models.PaymentCompleted {
		return map[string]any{"noop": "payment not completed"}, nil
	}
	if d.Payment != nil {
		return map[string]any{"noop": "payment record exists", "reference": d.Payment.PaymentReference}, nil
	}

	method := app.PaymentMethod
	if method == "" {
		method = models.PaymentMethodPaystack
	}
	row := &models.PaymentTransaction{
		ApplicationID:    &app.ID,
		PaymentReference: "RECON-" + app.ID.String(),
		Currency:         currencyFor(method),
		PaymentMethod:    method,
		Status:           models.TransactionSuccess,
		Metadata: mergeMetadata(nil, map[string]any{
			"reconciledBy": "reconciliation",
			"reconciledAt": r.now().UTC().Format(time.RFC3339),
			"reason":       "application completed without a payment record",
		}),
	}
	if cohort, err := r.store.GetCohort(ctx, app.CohortID); err == nil {
		row.Amount = cohort.FeeNGN
		if method == models.PaymentMethodBlockchain {
			row.Amount = cohort.FeeUSD
		}
	}

	err := r.store.CreatePayment(ctx, row)
	if errors.Is(err, store.ErrDuplicate) {
		return map[string]any{"noop": "payment record exists", "reference": row.PaymentReference}, nil
	}
	if err != nil {
		return nil, storageError("create payment record", err)
	}
	r.recordActivity(ctx, app, models.ActivityPaymentReconciled, map[string]any{
		"applicationId": app.ID.String(),
		"reference":     row.PaymentReference,
	})
	return map[string]any{"reference": row.PaymentReference}, nil
}

func (r *Reconciler) createEnrollment(ctx context.Context, d *Diagnosis) (map[string]any, error) {
	app := d.Application
	if d.Enrollment != nil {
		return map[string]any{"noop": "enrollment exists"}, nil
	}
	if app.PaymentStatus != models.PaymentCompleted || !app.IsApproved() {
		return map[string]any{"noop": "application not completed and approved"}, nil
	}
	res, err := r.enrollments.CreateEnrollmentForCompletedApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyExists {
		r.recordActivity(ctx, app, models.ActivityEnrollmentReconciled, map[string]any{
			"applicationId": app.ID.String(),
			"cohortId":      app.CohortID,
		})
	}
	return map[string]any{"already_exists": res.AlreadyExists}, nil
}

func (r *Reconciler) grantKey(ctx context.Context, d *Diagnosis) (map[string]any, error) {
	app := d.Application
	if r.grants == nil {
		return nil, upstreamError("key_grants_disabled", "key grants are not configured", nil)
	}
	if app.PaymentStatus != models.PaymentCompleted || !app.IsApproved() {
		return map[string]any{"noop": "application not completed and approved"}, nil
	}
	outcome, err := r.grants.GrantForApplication(ctx, app, OriginReconcile)
	if err != nil {
		return nil, err
	}
	switch {
	case outcome.Skipped != "":
		return map[string]any{"noop": outcome.Skipped}, nil
	case outcome.InProgress:
		return nil, &Error{Kind: KindConflict, Code: "grant_in_progress", Message: "another grant is in progress"}
	}
	return map[string]any{
		"granted":          outcome.Granted,
		"already_had_key":  outcome.AlreadyHadKey,
		"transaction_hash": outcome.TransactionHash,
		"attempts":         outcome.Attempts,
	}, nil
}

func (r *Reconciler) recordActivity(ctx context.Context, app *models.Application, kind models.ActivityType, data map[string]any) {
	raw, _ := json.Marshal(data)
	if err := r.store.RecordActivity(ctx, &models.UserActivity{
		UserProfileID: app.UserProfileID,
		ActivityType:  kind,
		ActivityData:  raw,
	}); err != nil {
		log.Printf("⚠️ Record %s activity for %s: %v", kind, app.ID, err)
	}
}
