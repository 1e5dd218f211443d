package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

// SyncRequest asks for a partial status update. Nil fields are left alone.
type SyncRequest struct {
	ApplicationID     uuid.UUID
	UserProfileID     uuid.UUID
	PaymentStatus     *models.PaymentStatus
	ApplicationStatus *models.ApplicationStatus
	EnrollmentStatus  *models.EnrollmentStatus
	Reason            string
}

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// SyncedState is the application's state after a sync.
type SyncedState struct {
	ApplicationID     uuid.UUID                `json:"application_id"`
	UserProfileID     uuid.UUID                `json:"user_profile_id"`
	PaymentStatus     models.PaymentStatus     `json:"payment_status"`
	ApplicationStatus models.ApplicationStatus `json:"application_status"`
	StatusRowStatus   models.PaymentStatus     `json:"status_row_status,omitempty"`
	EnrollmentStatus  models.EnrollmentStatus  `json:"enrollment_status,omitempty"`
	Changes           []FieldChange            `json:"changes,omitempty"`
	Confirmed         bool                     `json:"confirmed"`
}

func (s *SyncedState) Changed() bool {
	return len(s.Changes) > 0
}

// StatusSync is the single writer of application, status-row and
// enrollment status.
type StatusSync struct {
	store Store
	now   func() time.Time
}

func NewStatusSync(s Store) *StatusSync {
	return &StatusSync{store: s, now: time.Now}
}

func (s *StatusSync) SyncApplicationStatus(ctx context.Context, req SyncRequest) (*SyncedState, error) {
	if req.ApplicationID == uuid.Nil {
		return nil, validationError("missing_application_id", "application id is required")
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		return nil, validationError("invalid_payment_status", "unknown payment status "+string(*req.PaymentStatus))
	}
	if req.ApplicationStatus != nil && !req.ApplicationStatus.Valid() {
		return nil, validationError("invalid_application_status", "unknown application status "+string(*req.ApplicationStatus))
	}
	if req.EnrollmentStatus != nil && !req.EnrollmentStatus.Valid() {
		return nil, validationError("invalid_enrollment_status", "unknown enrollment status "+string(*req.EnrollmentStatus))
	}

	app, err := s.store.GetApplication(ctx, req.ApplicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("application_not_found", "application does not exist")
	}
	if err != nil {
		return nil, storageError("load application", err)
	}
	if req.UserProfileID != uuid.Nil && req.UserProfileID != app.UserProfileID {
		return nil, validationError("user_mismatch", "application belongs to another user")
	}

	// A payment that becomes completed approves the application unless the
	// caller says otherwise. Re-sending completed leaves a rejection alone.
	targetApp := req.ApplicationStatus
	if targetApp == nil && req.PaymentStatus != nil && *req.PaymentStatus == models.PaymentCompleted &&
		app.PaymentStatus != models.PaymentCompleted {
		approved := models.ApplicationApproved
		targetApp = &approved
	}

	statusRow, err := s.store.GetApplicationStatus(ctx, app.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, storageError("load status row", err)
	}

	var enrollment *models.Enrollment
	if req.EnrollmentStatus != nil {
		enrollment, err = s.store.GetEnrollment(ctx, app.UserProfileID, app.CohortID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load enrollment", err)
		}
	}

	state := &SyncedState{
		ApplicationID:     app.ID,
		UserProfileID:     app.UserProfileID,
		PaymentStatus:     app.PaymentStatus,
		ApplicationStatus: app.ApplicationStatus,
	}
	if statusRow != nil {
		state.StatusRowStatus = statusRow.Status
	}
	if enrollment != nil {
		state.EnrollmentStatus = enrollment.EnrollmentStatus
	}

	entry := &models.StatusAuditEntry{
		ApplicationID: app.ID,
		UserProfileID: app.UserProfileID,
		Reason:        req.Reason,
	}
	var patch store.ApplicationPatch

	if req.PaymentStatus != nil && *req.PaymentStatus != app.PaymentStatus {
		patch.PaymentStatus = req.PaymentStatus
		entry.FromPaymentStatus, entry.ToPaymentStatus = app.PaymentStatus, *req.PaymentStatus
		state.Changes = append(state.Changes, FieldChange{"payment_status", string(app.PaymentStatus), string(*req.PaymentStatus)})
		state.PaymentStatus = *req.PaymentStatus
	}
	if targetApp != nil && *targetApp != app.ApplicationStatus {
		patch.ApplicationStatus = targetApp
		entry.FromApplicationStatus, entry.ToApplicationStatus = app.ApplicationStatus, *targetApp
		state.Changes = append(state.Changes, FieldChange{"application_status", string(app.ApplicationStatus), string(*targetApp)})
		state.ApplicationStatus = *targetApp
	}

	// The status row mirrors the payment status whenever one is given.
	var rowUpsert *models.UserApplicationStatus
	if req.PaymentStatus != nil && (statusRow == nil || statusRow.Status != *req.PaymentStatus) {
		from := ""
		if statusRow != nil {
			from = string(statusRow.Status)
		}
		rowUpsert = &models.UserApplicationStatus{
			ApplicationID: app.ID,
			UserProfileID: app.UserProfileID,
			Status:        *req.PaymentStatus,
			PaymentMethod: app.PaymentMethod,
		}
		state.Changes = append(state.Changes, FieldChange{"status_row", from, string(*req.PaymentStatus)})
		state.StatusRowStatus = *req.PaymentStatus
	}

	enrollmentChanged := enrollment != nil && enrollment.EnrollmentStatus != *req.EnrollmentStatus
	if enrollmentChanged {
		entry.FromEnrollmentStatus, entry.ToEnrollmentStatus = enrollment.EnrollmentStatus, *req.EnrollmentStatus
		state.Changes = append(state.Changes, FieldChange{"enrollment_status", string(enrollment.EnrollmentStatus), string(*req.EnrollmentStatus)})
		state.EnrollmentStatus = *req.EnrollmentStatus
	}

	if !state.Changed() {
		return state, s.confirm(ctx, entry)
	}

	if patch.PaymentStatus != nil || patch.ApplicationStatus != nil {
		if err := s.store.UpdateApplication(ctx, app.ID, patch); err != nil {
			return nil, storageError("update application", err)
		}
	}
	if rowUpsert != nil {
		if err := s.store.UpsertApplicationStatus(ctx, rowUpsert); err != nil {
			return nil, storageError("upsert status row", err)
		}
	}
	if enrollmentChanged {
		if err := s.store.UpdateEnrollmentStatus(ctx, enrollment.ID, *req.EnrollmentStatus); err != nil {
			return nil, storageError("update enrollment", err)
		}
	}
	if err := s.store.AppendStatusAudit(ctx, entry); err != nil {
		return nil, storageError("append audit", err)
	}

	log.Printf("🔄 Synced application %s: %d change(s) (%s)", app.ID, len(state.Changes), req.Reason)
	return state, nil
}

// confirm appends a single Confirmed marker after a no-op sync. Repeated
// no-op syncs do not stack markers.
func (s *StatusSync) confirm(ctx context.Context, entry *models.StatusAuditEntry) error {
	latest, err := s.store.LatestStatusAudit(ctx, entry.ApplicationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storageError("load audit", err)
	}
	if latest != nil && latest.Confirmed {
		return nil
	}
	entry.Confirmed = true
	if err := s.store.AppendStatusAudit(ctx, entry); err != nil {
		return storageError("append audit", err)
	}
	return nil
}

// PaymentConfirmation is a verified payment outcome to be written through.
type PaymentConfirmation struct {
	Reference       string
	ApplicationID   uuid.UUID
	Status          models.TransactionStatus
	Method          models.PaymentMethod
	Amount          decimal.Decimal
	Currency        models.Currency
	TransactionHash string
	NetworkChainID  *int64
	Metadata        map[string]any
	Reason          string
	// RowOnly records the outcome on an existing row and leaves the
	// application alone. The sweeper retires dead rows this way.
	RowOnly bool
}

// ConfirmPayment writes a terminal payment outcome to the transaction row
// and the application. The row is matched by application first, then by
// reference or hash. Without a resolvable application a processing
// placeholder row is stored and an application_unresolved error returned.
func (s *StatusSync) ConfirmPayment(ctx context.Context, c PaymentConfirmation) (*SyncedState, error) {
	if c.Reference == "" {
		return nil, validationError("missing_reference", "payment reference is required")
	}
	if c.Status != models.TransactionSuccess && c.Status != models.TransactionFailed {
		return nil, validationError("invalid_transaction_status", "confirmation must be success or failed")
	}

	row, err := s.matchPayment(ctx, c)
	if err != nil {
		return nil, err
	}

	appID := c.ApplicationID
	if appID == uuid.Nil && row != nil && row.ApplicationID != nil {
		appID = *row.ApplicationID
	}

	if c.RowOnly {
		if row == nil {
			return nil, notFoundError("payment_not_found", "no payment row for "+c.Reference)
		}
		if err := s.writePayment(ctx, c, row, appID, c.Status); err != nil {
			return nil, err
		}
		log.Printf("🗂️ Payment %s marked %s without touching its application (%s)", c.Reference, c.Status, c.Reason)
		return &SyncedState{ApplicationID: appID}, nil
	}

	if appID == uuid.Nil {
		if err := s.storePlaceholder(ctx, c, row); err != nil {
			return nil, err
		}
		return nil, notFoundError("application_unresolved", "payment does not match any application")
	}

	if err := s.writePayment(ctx, c, row, appID, c.Status); err != nil {
		return nil, err
	}

	target := models.PaymentCompleted
	if c.Status == models.TransactionFailed {
		app, err := s.store.GetApplication(ctx, appID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, validationError("application_not_found", "application does not exist")
			}
			return nil, storageError("load application", err)
		}
		// A failed retry never undoes an earlier successful payment.
		if app.PaymentStatus == models.PaymentCompleted {
			return &SyncedState{
				ApplicationID:     app.ID,
				UserProfileID:     app.UserProfileID,
				PaymentStatus:     app.PaymentStatus,
				ApplicationStatus: app.ApplicationStatus,
			}, nil
		}
		target = models.PaymentFailed
	}

	reason := c.Reason
	if reason == "" {
		reason = "payment " + string(c.Status) + " via " + string(c.Method)
	}
	return s.SyncApplicationStatus(ctx, SyncRequest{
		ApplicationID: appID,
		PaymentStatus: &target,
		Reason:        reason,
	})
}

func (s *StatusSync) matchPayment(ctx context.Context, c PaymentConfirmation) (*models.PaymentTransaction, error) {
	if c.ApplicationID != uuid.Nil {
		row, err := s.store.LatestPaymentForApplication(ctx, c.ApplicationID)
		switch {
		case err == nil && (row.PaymentReference == c.Reference || !row.Status.IsTerminal()):
			return row, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, storageError("load payment by application", err)
		}
	}

	row, err := s.store.GetPaymentByReference(ctx, c.Reference)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storageError("load payment by reference", err)
	}

	if c.TransactionHash != "" {
		row, err = s.store.GetPaymentByHash(ctx, c.TransactionHash)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load payment by hash", err)
		}
	}
	return nil, nil
}

func (s *StatusSync) writePayment(ctx context.Context, c PaymentConfirmation, row *models.PaymentTransaction, appID uuid.UUID, status models.TransactionStatus) error {
	var existing datatypes.JSON
	if row != nil {
		existing = row.Metadata
	}
	metadata := mergeMetadata(existing, c.Metadata)

	patch := store.PaymentPatch{
		Status:         &status,
		NetworkChainID: c.NetworkChainID,
		Metadata:       metadata,
	}
	if appID != uuid.Nil {
		patch.ApplicationID = &appID
	}
	if c.TransactionHash != "" {
		patch.TransactionHash = &c.TransactionHash
	}

	if row != nil {
		if err := s.store.UpdatePayment(ctx, row.PaymentReference, patch); err != nil {
			return storageError("update payment", err)
		}
		return nil
	}

	p := &models.PaymentTransaction{
		PaymentReference: c.Reference,
		Amount:           c.Amount,
		Currency:         c.Currency,
		PaymentMethod:    c.Method,
		Status:           status,
		NetworkChainID:   c.NetworkChainID,
		Metadata:         metadata,
	}
	if p.Currency == "" {
		p.Currency = currencyFor(c.Method)
	}
	if appID != uuid.Nil {
		p.ApplicationID = &appID
	}
	if c.TransactionHash != "" {
		p.TransactionHash = &c.TransactionHash
	}

	err := s.store.CreatePayment(ctx, p)
	if errors.Is(err, store.ErrDuplicate) {
		// Another writer inserted the same reference first.
		err = s.store.UpdatePayment(ctx, c.Reference, patch)
	}
	if err != nil {
		return storageError("store payment", err)
	}
	return nil
}

func (s *StatusSync) storePlaceholder(ctx context.Context, c PaymentConfirmation, row *models.PaymentTransaction) error {
	meta := map[string]any{"unmatched": true, "gatewayStatus": string(c.Status)}
	for k, v := range c.Metadata {
		meta[k] = v
	}
	log.Printf("⚠️ Payment %s has no matching application, storing placeholder", c.Reference)
	return s.writePayment(ctx, PaymentConfirmation{
		Reference:       c.Reference,
		Method:          c.Method,
		Amount:          c.Amount,
		Currency:        c.Currency,
		TransactionHash: c.TransactionHash,
		NetworkChainID:  c.NetworkChainID,
		Metadata:        meta,
	}, row, uuid.Nil, models.TransactionProcessing)
}

// mergeMetadata overlays extra onto the stored JSON object. Stored values
// that are not objects are replaced.
func mergeMetadata(stored datatypes.JSON, extra map[string]any) datatypes.JSON {
	merged := map[string]any{}
	if len(stored) > 0 {
		_ = json.Unmarshal(stored, &merged)
		if merged == nil {
			merged = map[string]any{}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	if len(merged) == 0 {
		return stored
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return stored
	}
	return datatypes.JSON(b)
}

func currencyFor(method models.PaymentMethod) models.Currency {
	if method == models.PaymentMethodBlockchain {
		return models.CurrencyUSD
	}
	return models.CurrencyNGN
}
