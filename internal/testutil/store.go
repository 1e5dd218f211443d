// Package testutil holds in-memory collaborators for service and handler
// tests. The fakes satisfy the services interfaces structurally.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

// Store is an in-memory transaction store with the same uniqueness rules
// and sentinel errors as store.GormStore.
type Store struct {
	mu sync.Mutex

	Applications map[uuid.UUID]*models.Application
	StatusRows   map[uuid.UUID]*models.UserApplicationStatus
	Audit        []models.StatusAuditEntry
	Payments     []*models.PaymentTransaction
	Enrollments  []*models.Enrollment
	Profiles     map[uuid.UUID]*models.UserProfile
	Cohorts      map[string]*models.Cohort
	Activities   []models.UserActivity
	Notes        []*models.Notification

	// Fail makes the named method return the error.
	Fail map[string]error
	// Calls counts invocations per method.
	Calls map[string]int

	clock time.Time
}

func NewStore() *Store {
	return &Store{
		Applications: map[uuid.UUID]*models.Application{},
		StatusRows:   map[uuid.UUID]*models.UserApplicationStatus{},
		Profiles:     map[uuid.UUID]*models.UserProfile{},
		Cohorts:      map[string]*models.Cohort{},
		Fail:         map[string]error{},
		Calls:        map[string]int{},
		clock:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick hands out strictly increasing timestamps so "latest" is well defined.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) enter(method string) error {
	s.Calls[method]++
	return s.Fail[method]
}

// CallCount returns how often method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[method]
}

func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail[method] = err
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetApplication"); err != nil {
		return nil, err
	}
	app, ok := s.Applications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *Store) UpdateApplication(ctx context.Context, id uuid.UUID, patch store.ApplicationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateApplication"); err != nil {
		return err
	}
	app, ok := s.Applications[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.PaymentStatus != nil {
		app.PaymentStatus = *patch.PaymentStatus
	}
	if patch.ApplicationStatus != nil {
		app.ApplicationStatus = *patch.ApplicationStatus
	}
	app.UpdatedAt = s.tick()
	return nil
}

func (s *Store) GetApplicationStatus(ctx context.Context, applicationID uuid.UUID) (*models.UserApplicationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetApplicationStatus"); err != nil {
		return nil, err
	}
	row, ok := s.StatusRows[applicationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) UpsertApplicationStatus(ctx context.Context, row *models.UserApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertApplicationStatus"); err != nil {
		return err
	}
	if existing, ok := s.StatusRows[row.ApplicationID]; ok {
		existing.Status = row.Status
		existing.PaymentMethod = row.PaymentMethod
		existing.UpdatedAt = s.tick()
		return nil
	}
	cp := *row
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = s.tick()
	s.StatusRows[row.ApplicationID] = &cp
	return nil
}

func (s *Store) AppendStatusAudit(ctx context.Context, entry *models.StatusAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AppendStatusAudit"); err != nil {
		return err
	}
	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = s.tick()
	s.Audit = append(s.Audit, cp)
	return nil
}

func (s *Store) LatestStatusAudit(ctx context.Context, applicationID uuid.UUID) (*models.StatusAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LatestStatusAudit"); err != nil {
		return nil, err
	}
	for i := len(s.Audit) - 1; i >= 0; i-- {
		if s.Audit[i].ApplicationID == applicationID {
			cp := s.Audit[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// AuditFor returns the audit trail of one application, oldest first.
func (s *Store) AuditFor(applicationID uuid.UUID) []models.StatusAuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatusAuditEntry
	for _, e := range s.Audit {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) findPayment(match func(p *models.PaymentTransaction) bool) *models.PaymentTransaction {
	var found *models.PaymentTransaction
	for _, p := range s.Payments {
		if match(p) && (found == nil || !p.CreatedAt.Before(found.CreatedAt)) {
			found = p
		}
	}
	return found
}

func (s *Store) paymentResult(method string, match func(p *models.PaymentTransaction) bool) (*models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return nil, err
	}
	p := s.findPayment(match)
	if p == nil {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	return s.paymentResult("GetPaymentByReference", func(p *models.PaymentTransaction) bool {
		return p.PaymentReference == reference
	})
}

func (s *Store) GetPaymentByHash(ctx context.Context, hash string) (*models.PaymentTransaction, error) {
	return s.paymentResult("GetPaymentByHash", func(p *models.PaymentTransaction) bool {
		return p.TransactionHash != nil && strings.EqualFold(*p.TransactionHash, hash)
	})
}

func (s *Store) LatestPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error) {
	return s.paymentResult("LatestPaymentForApplication", func(p *models.PaymentTransaction) bool {
		return p.ApplicationID != nil && *p.ApplicationID == applicationID
	})
}

func (s *Store) SuccessfulPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error) {
	return s.paymentResult("SuccessfulPaymentForApplication", func(p *models.PaymentTransaction) bool {
		return p.ApplicationID != nil && *p.ApplicationID == applicationID && p.Status == models.TransactionSuccess
	})
}

func (s *Store) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreatePayment"); err != nil {
		return err
	}
	if err := models.Validate(p); err != nil {
		return store.ErrInvalidRow
	}
	for _, existing := range s.Payments {
		if existing.PaymentReference == p.PaymentReference {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.tick()
	}
	cp := *p
	s.Payments = append(s.Payments, &cp)
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, reference string, patch store.PaymentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdatePayment"); err != nil {
		return err
	}
	p := s.findPayment(func(p *models.PaymentTransaction) bool { return p.PaymentReference == reference })
	if p == nil {
		return store.ErrNotFound
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.ApplicationID != nil {
		id := *patch.ApplicationID
		p.ApplicationID = &id
	}
	if patch.TransactionHash != nil {
		h := *patch.TransactionHash
		p.TransactionHash = &h
	}
	if patch.NetworkChainID != nil {
		c := *patch.NetworkChainID
		p.NetworkChainID = &c
	}
	if patch.Metadata != nil {
		p.Metadata = patch.Metadata
	}
	p.UpdatedAt = s.tick()
	return nil
}

func (s *Store) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListStalePendingPayments"); err != nil {
		return nil, err
	}
	var out []models.PaymentTransaction
	for _, p := range s.Payments {
		if p.Status != models.TransactionPending && p.Status != models.TransactionProcessing {
			continue
		}
		if p.CreatedAt.Before(cutoff) && (p.LastCheckedAt == nil || p.LastCheckedAt.Before(cutoff)) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkPaymentChecked(ctx context.Context, reference string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkPaymentChecked"); err != nil {
		return err
	}
	for _, p := range s.Payments {
		if p.PaymentReference == reference {
			t := at
			p.LastCheckedAt = &t
			return nil
		}
	}
	return store.ErrNotFound
}

// PaymentsFor returns every payment row of an application.
func (s *Store) PaymentsFor(applicationID uuid.UUID) []models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentTransaction
	for _, p := range s.Payments {
		if p.ApplicationID != nil && *p.ApplicationID == applicationID {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Store) GetEnrollment(ctx context.Context, userProfileID uuid.UUID, cohortID string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetEnrollment"); err != nil {
		return nil, err
	}
	for _, e := range s.Enrollments {
		if e.UserProfileID == userProfileID && e.CohortID == cohortID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateEnrollment"); err != nil {
		return err
	}
	for _, existing := range s.Enrollments {
		if existing.UserProfileID == e.UserProfileID && existing.CohortID == e.CohortID {
			return store.ErrDuplicate
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = s.tick()
	e.EnrolledAt = e.CreatedAt
	cp := *e
	s.Enrollments = append(s.Enrollments, &cp)
	return nil
}

func (s *Store) UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateEnrollmentStatus"); err != nil {
		return err
	}
	for _, e := range s.Enrollments {
		if e.ID == id {
			e.EnrollmentStatus = status
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) EnrollmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Enrollments)
}

func (s *Store) GetUserProfile(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserProfile"); err != nil {
		return nil, err
	}
	u, ok := s.Profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetCohort(ctx context.Context, id string) (*models.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetCohort"); err != nil {
		return nil, err
	}
	c, ok := s.Cohorts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) RecordActivity(ctx context.Context, a *models.UserActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordActivity"); err != nil {
		return err
	}
	cp := *a
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = s.tick()
	s.Activities = append(s.Activities, cp)
	return nil
}

// ActivitiesOf returns recorded activities of the given type.
func (s *Store) ActivitiesOf(kind models.ActivityType) []models.UserActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserActivity
	for _, a := range s.Activities {
		if a.ActivityType == kind {
			out = append(out, a)
		}
	}
	return out
}

// ListOverview derives overview rows the way the database view does.
func (s *Store) ListOverview(ctx context.Context, f store.OverviewFilter) ([]models.ApplicationOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListOverview"); err != nil {
		return nil, err
	}
	var out []models.ApplicationOverview
	for _, app := range s.Applications {
		o := models.ApplicationOverview{
			ApplicationID:     app.ID,
			UserProfileID:     app.UserProfileID,
			CohortID:          app.CohortID,
			UserEmail:         app.UserEmail,
			PaymentStatus:     app.PaymentStatus,
			ApplicationStatus: app.ApplicationStatus,
			CreatedAt:         app.CreatedAt,
		}
		if row, ok := s.StatusRows[app.ID]; ok {
			st := row.Status
			o.StatusRowStatus = &st
		}
		for _, p := range s.Payments {
			if p.ApplicationID != nil && *p.ApplicationID == app.ID && p.Status == models.TransactionSuccess {
				o.SuccessfulPayments++
			}
		}
		for _, e := range s.Enrollments {
			if e.UserProfileID == app.UserProfileID && e.CohortID == app.CohortID {
				o.HasEnrollment = true
			}
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		if f.OnlyInconsistent && !o.NeedsReconciliation() {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID.String() < out[j].ApplicationID.String() })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id uuid.UUID, patch store.ProfilePatch) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateUserProfile"); err != nil {
		return nil, err
	}
	u, ok := s.Profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.FullName != nil {
		u.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.WalletAddress != nil {
		u.WalletAddress = strings.ToLower(strings.TrimSpace(*patch.WalletAddress))
	}
	cp := *u
	return &cp, nil
}
