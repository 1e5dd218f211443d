package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Bootcamp/internal/models"
)

// ApplicationPatch names the application columns a sync may change. Nil
// fields are left untouched.
type ApplicationPatch struct {
	PaymentStatus     *models.PaymentStatus
	ApplicationStatus *models.ApplicationStatus
}

// PaymentPatch names the payment columns a confirmation may change.
type PaymentPatch struct {
	Status          *models.TransactionStatus
	ApplicationID   *uuid.UUID
	TransactionHash *string
	NetworkChainID  *int64
	Metadata        datatypes.JSON
}

// OverviewFilter narrows ListOverview.
type OverviewFilter struct {
	PaymentStatus    models.PaymentStatus
	OnlyInconsistent bool
	Limit            int
	Offset           int
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) validate(row any) error {
	if err := models.Validate(row); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return nil
}

func (s *GormStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

func (s *GormStore) UpdateApplication(ctx context.Context, id uuid.UUID, patch ApplicationPatch) error {
	updates := map[string]interface{}{}
	if patch.PaymentStatus != nil {
		updates["payment_status"] = *patch.PaymentStatus
	}
	if patch.ApplicationStatus != nil {
		updates["application_status"] = *patch.ApplicationStatus
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetApplicationStatus(ctx context.Context, applicationID uuid.UUID) (*models.UserApplicationStatus, error) {
	var row models.UserApplicationStatus
	if err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// UpsertApplicationStatus inserts the status row or overwrites its status.
func (s *GormStore) UpsertApplicationStatus(ctx context.Context, row *models.UserApplicationStatus) error {
	if err := s.validate(row); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "application_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payment_method", "updated_at"}),
	}).Create(row).Error
	return translate(err)
}

func (s *GormStore) AppendStatusAudit(ctx context.Context, entry *models.StatusAuditEntry) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) LatestStatusAudit(ctx context.Context, applicationID uuid.UUID) (*models.StatusAuditEntry, error) {
	var entry models.StatusAuditEntry
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (s *GormStore) GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := s.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) GetPaymentByHash(ctx context.Context, hash string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := s.db.WithContext(ctx).Where("LOWER(transaction_hash) = LOWER(?)", hash).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// LatestPaymentForApplication returns the most recent attempt for an application.
func (s *GormStore) LatestPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) SuccessfulPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := s.db.WithContext(ctx).
		Where("application_id = ? AND status = ?", applicationID, models.TransactionSuccess).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

// UpdatePayment applies patch to the row with the given reference.
func (s *GormStore) UpdatePayment(ctx context.Context, reference string, patch PaymentPatch) error {
	updates := map[string]interface{}{}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.ApplicationID != nil {
		updates["application_id"] = *patch.ApplicationID
	}
	if patch.TransactionHash != nil {
		updates["transaction_hash"] = *patch.TransactionHash
	}
	if patch.NetworkChainID != nil {
		updates["network_chain_id"] = *patch.NetworkChainID
	}
	if patch.Metadata != nil {
		updates["metadata"] = patch.Metadata
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("payment_reference = ?", reference).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStalePendingPayments returns pending or processing rows created and
// last checked before cutoff. Rows never checked come first, then the ones
// checked longest ago, so rows that cannot be resolved rotate to the back.
func (s *GormStore) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []models.TransactionStatus{models.TransactionPending, models.TransactionProcessing}, cutoff).
		Where("last_checked_at IS NULL OR last_checked_at < ?", cutoff).
		Order("last_checked_at ASC NULLS FIRST, created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, translate(err)
}

// MarkPaymentChecked stamps the row's last sweep time. It never touches status.
func (s *GormStore) MarkPaymentChecked(ctx context.Context, reference string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("payment_reference = ?", reference).
		UpdateColumn("last_checked_at", at)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetEnrollment(ctx context.Context, userProfileID uuid.UUID, cohortID string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_profile_id = ? AND cohort_id = ?", userProfileID, cohortID).
		First(&e).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *GormStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	if err := s.validate(e); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(e).Error)
}

func (s *GormStore) UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", id).Update("enrollment_status", status)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetUserProfile(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetCohort(ctx context.Context, id string) (*models.Cohort, error) {
	var c models.Cohort
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) RecordActivity(ctx context.Context, a *models.UserActivity) error {
	if err := s.validate(a); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

// ListOverview reads the application_payment_overview view.
func (s *GormStore) ListOverview(ctx context.Context, f OverviewFilter) ([]models.ApplicationOverview, error) {
	query := s.db.WithContext(ctx).Model(&models.ApplicationOverview{})

	if f.PaymentStatus != "" {
		query = query.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.OnlyInconsistent {
		query = query.Where(`status_row_status IS NULL
			OR status_row_status <> payment_status
			OR (payment_status = 'completed' AND successful_payments = 0)
			OR (payment_status = 'completed' AND application_status = 'approved' AND NOT has_enrollment)`)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var rows []models.ApplicationOverview
	err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&rows).Error
	return rows, translate(err)
}
