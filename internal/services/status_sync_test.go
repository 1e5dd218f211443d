package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
)

// =============================================================================
// Test: SyncApplicationStatus
// =============================================================================

func TestStatusSync_SyncApplicationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a pending application When payment becomes completed Then application is approved and status row mirrors it", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()

		// When
		state, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: fx.Application.ID,
			PaymentStatus: ptr(models.PaymentCompleted),
			Reason:        "test",
		})

		// Then
		if err != nil {
			t.Fatalf("SyncApplicationStatus failed: %v", err)
		}
		app := h.store.App(fx.Application.ID)
		if app.PaymentStatus != models.PaymentCompleted {
			t.Errorf("payment status = %s, want completed", app.PaymentStatus)
		}
		if app.ApplicationStatus != models.ApplicationApproved {
			t.Errorf("application status = %s, want approved", app.ApplicationStatus)
		}
		row := h.store.StatusRow(fx.Application.ID)
		if row == nil || row.Status != models.PaymentCompleted {
			t.Fatalf("status row = %+v, want completed", row)
		}
		if !state.Changed() || state.Confirmed {
			t.Errorf("expected a change, got %+v", state)
		}
		audit := h.store.AuditFor(fx.Application.ID)
		if len(audit) != 1 || audit[0].ToPaymentStatus != models.PaymentCompleted {
			t.Errorf("expected one audit entry to completed, got %+v", audit)
		}
	})

	t.Run("Given an explicit application status When payment becomes completed Then the caller's status wins", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()

		// When
		_, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID:     fx.Application.ID,
			PaymentStatus:     ptr(models.PaymentCompleted),
			ApplicationStatus: ptr(models.ApplicationSubmitted),
		})

		// Then
		if err != nil {
			t.Fatalf("SyncApplicationStatus failed: %v", err)
		}
		if got := h.store.App(fx.Application.ID).ApplicationStatus; got != models.ApplicationSubmitted {
			t.Errorf("application status = %s, want submitted", got)
		}
	})

	t.Run("Given only an enrollment status When syncing Then payment and application are untouched", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.SetApplication(fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)
		h.store.SetStatusRow(fx.Application, models.PaymentCompleted)
		h.store.AddEnrollment(fx.Application)

		// When
		state, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID:    fx.Application.ID,
			EnrollmentStatus: ptr(models.EnrollmentCompleted),
		})

		// Then
		if err != nil {
			t.Fatalf("SyncApplicationStatus failed: %v", err)
		}
		if state.EnrollmentStatus != models.EnrollmentCompleted {
			t.Errorf("enrollment status = %s, want completed", state.EnrollmentStatus)
		}
		if h.store.CallCount("UpdateApplication") != 0 || h.store.CallCount("UpsertApplicationStatus") != 0 {
			t.Error("expected application and status row to be left alone")
		}
	})

	t.Run("Given the same target twice When syncing Then one change entry and one confirmed marker are written", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		req := SyncRequest{ApplicationID: fx.Application.ID, PaymentStatus: ptr(models.PaymentCompleted), Reason: "webhook"}

		// When
		for i := 0; i < 3; i++ {
			if _, err := h.sync.SyncApplicationStatus(ctx, req); err != nil {
				t.Fatalf("sync %d failed: %v", i, err)
			}
		}

		// Then
		audit := h.store.AuditFor(fx.Application.ID)
		if len(audit) != 2 {
			t.Fatalf("expected 2 audit entries, got %d", len(audit))
		}
		if audit[0].Confirmed || !audit[1].Confirmed {
			t.Errorf("expected change then confirmed marker, got %+v", audit)
		}
	})

	t.Run("Given a completed rejected application When completed is sent again Then it is not approved", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.SetApplication(fx.Application.ID, models.PaymentCompleted, models.ApplicationRejected)

		// When
		state, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: fx.Application.ID,
			PaymentStatus: ptr(models.PaymentCompleted),
			Reason:        "status row repair",
		})

		// Then
		if err != nil {
			t.Fatalf("SyncApplicationStatus failed: %v", err)
		}
		if state.ApplicationStatus != models.ApplicationRejected {
			t.Errorf("state application status = %s, want rejected", state.ApplicationStatus)
		}
		if app := h.store.App(fx.Application.ID); app.ApplicationStatus != models.ApplicationRejected {
			t.Errorf("stored application status = %s, want rejected", app.ApplicationStatus)
		}
		if row := h.store.StatusRow(fx.Application.ID); row == nil || row.Status != models.PaymentCompleted {
			t.Errorf("status row = %+v, want completed", row)
		}
	})

	t.Run("Given an unknown payment status When syncing Then a validation error is returned without writes", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()

		// When
		_, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: fx.Application.ID,
			PaymentStatus: ptr(models.PaymentStatus("refunded")),
		})

		// Then
		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(h.store.AuditFor(fx.Application.ID)) != 0 {
			t.Error("expected no audit entries")
		}
	})

	t.Run("Given a missing application When syncing Then a validation error is returned", func(t *testing.T) {
		h := newHarness()

		_, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: uuid.New(),
			PaymentStatus: ptr(models.PaymentCompleted),
		})

		var se *Error
		if !errors.As(err, &se) || se.Kind != KindValidation || se.Code != "application_not_found" {
			t.Fatalf("expected application_not_found validation error, got %v", err)
		}
	})

	t.Run("Given another user's id When syncing Then the sync is refused", func(t *testing.T) {
		h := newHarness()
		fx := h.store.Seed()

		_, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: fx.Application.ID,
			UserProfileID: uuid.New(),
			PaymentStatus: ptr(models.PaymentCompleted),
		})

		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("Given the store fails When updating Then a retryable storage error is returned", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.FailOn("UpdateApplication", errors.New("connection refused"))

		// When
		_, err := h.sync.SyncApplicationStatus(ctx, SyncRequest{
			ApplicationID: fx.Application.ID,
			PaymentStatus: ptr(models.PaymentCompleted),
		})

		// Then
		var se *Error
		if !errors.As(err, &se) || se.Kind != KindStorage || !se.Retryable() {
			t.Fatalf("expected retryable storage error, got %v", err)
		}
	})
}

// =============================================================================
// Test: ConfirmPayment
// =============================================================================

func TestStatusSync_ConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a pending row When confirmed as success Then row and application are completed", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "ref-1", models.TransactionPending, h.now)

		// When
		state, err := h.sync.ConfirmPayment(ctx, PaymentConfirmation{
			Reference:     "ref-1",
			ApplicationID: fx.Application.ID,
			Status:        models.TransactionSuccess,
			Method:        models.PaymentMethodPaystack,
			Metadata:      map[string]any{"verifiedBy": "gateway"},
		})

		// Then
		if err != nil {
			t.Fatalf("ConfirmPayment failed: %v", err)
		}
		if state.PaymentStatus != models.PaymentCompleted {
			t.Errorf("payment status = %s, want completed", state.PaymentStatus)
		}
		if p := h.store.Payment("ref-1"); p.Status != models.TransactionSuccess {
			t.Errorf("row status = %s, want success", p.Status)
		}
	})

	t.Run("Given the client holds a different reference When confirming by application Then the application's row is updated", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.AddPayment(fx.Application, "gateway-ref", models.TransactionPending, h.now)

		// When
		_, err := h.sync.ConfirmPayment(ctx, PaymentConfirmation{
			Reference:     "client-ref",
			ApplicationID: fx.Application.ID,
			Status:        models.TransactionSuccess,
			Method:        models.PaymentMethodPaystack,
		})

		// Then
		if err != nil {
			t.Fatalf("ConfirmPayment failed: %v", err)
		}
		if p := h.store.Payment("gateway-ref"); p.Status != models.TransactionSuccess {
			t.Errorf("gateway-ref status = %s, want success", p.Status)
		}
		if h.store.Payment("client-ref") != nil {
			t.Error("expected no new row for the client reference")
		}
	})

	t.Run("Given a completed application When a later attempt fails Then the application stays completed", func(t *testing.T) {
		// Given
		h := newHarness()
		fx := h.store.Seed()
		h.store.SetApplication(fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)

		// When
		state, err := h.sync.ConfirmPayment(ctx, PaymentConfirmation{
			Reference:     "retry-ref",
			ApplicationID: fx.Application.ID,
			Status:        models.TransactionFailed,
			Method:        models.PaymentMethodPaystack,
		})

		// Then
		if err != nil {
			t.Fatalf("ConfirmPayment failed: %v", err)
		}
		if state.PaymentStatus != models.PaymentCompleted {
			t.Errorf("payment status = %s, want completed", state.PaymentStatus)
		}
		if p := h.store.Payment("retry-ref"); p == nil || p.Status != models.TransactionFailed {
			t.Errorf("expected failed attempt row, got %+v", p)
		}
	})

	t.Run("Given no matching application When confirming Then a processing placeholder is stored", func(t *testing.T) {
		// Given
		h := newHarness()

		// When
		_, err := h.sync.ConfirmPayment(ctx, PaymentConfirmation{
			Reference: "orphan-ref",
			Status:    models.TransactionSuccess,
			Method:    models.PaymentMethodPaystack,
		})

		// Then
		var se *Error
		if !errors.As(err, &se) || se.Code != "application_unresolved" {
			t.Fatalf("expected application_unresolved, got %v", err)
		}
		p := h.store.Payment("orphan-ref")
		if p == nil || p.Status != models.TransactionProcessing {
			t.Fatalf("expected processing placeholder, got %+v", p)
		}
	})

	t.Run("Given a non terminal status When confirming Then validation fails", func(t *testing.T) {
		h := newHarness()

		_, err := h.sync.ConfirmPayment(ctx, PaymentConfirmation{Reference: "r", Status: models.TransactionPending})

		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestMergeMetadata(t *testing.T) {
	merged := mergeMetadata([]byte(`{"a":1,"b":"keep"}`), map[string]any{"a": 2, "c": true})
	want := `{"a":2,"b":"keep","c":true}`
	if string(merged) != want {
		t.Errorf("merged = %s, want %s", merged, want)
	}

	if got := mergeMetadata([]byte(`"not an object"`), map[string]any{"x": "y"}); string(got) != `{"x":"y"}` {
		t.Errorf("non-object metadata should be replaced, got %s", got)
	}
}
