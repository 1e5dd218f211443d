package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Bootcamp/internal/models"
)

const (
	LockAddress   = "0x2222222222222222222222222222222222222222"
	WalletAddress = "0x1111111111111111111111111111111111111111"
	CohortID      = "cohort-2025"
)

// Fixture is one applicant with a cohort, profile and application.
type Fixture struct {
	User        *models.UserProfile
	Cohort      *models.Cohort
	Application *models.Application
}

// Seed inserts a paystack applicant in the default cohort with a wallet and
// a lock configured. The application starts submitted and pending.
func (s *Store) Seed() *Fixture {
	s.mu.Lock()
	defer s.mu.Unlock()

	cohort, ok := s.Cohorts[CohortID]
	if !ok {
		managers, _ := json.Marshal([]string{"0x3333333333333333333333333333333333333333"})
		cohort = &models.Cohort{
			ID:          CohortID,
			Name:        "Web3 Bootcamp 2025",
			LockAddress: LockAddress,
			ChainID:     8453,
			KeyManagers: managers,
			FeeNGN:      decimal.NewFromInt(50000),
			FeeUSD:      decimal.NewFromInt(50),
		}
		s.Cohorts[CohortID] = cohort
	}

	user := &models.UserProfile{
		ID:            uuid.New(),
		Email:         "ada@example.com",
		FullName:      "Ada Obi",
		WalletAddress: WalletAddress,
		Role:          "user",
	}
	s.Profiles[user.ID] = user

	app := &models.Application{
		ID:                uuid.New(),
		UserProfileID:     user.ID,
		CohortID:          cohort.ID,
		UserEmail:         user.Email,
		UserName:          user.FullName,
		PaymentMethod:     models.PaymentMethodPaystack,
		PaymentStatus:     models.PaymentPending,
		ApplicationStatus: models.ApplicationSubmitted,
		CreatedAt:         s.tick(),
	}
	s.Applications[app.ID] = app

	return &Fixture{User: user, Cohort: cohort, Application: app}
}

// SetApplication overwrites the seeded application's statuses.
func (s *Store) SetApplication(id uuid.UUID, payment models.PaymentStatus, status models.ApplicationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app := s.Applications[id]
	app.PaymentStatus = payment
	app.ApplicationStatus = status
}

// SetStatusRow writes a status row directly, bypassing sync.
func (s *Store) SetStatusRow(app *models.Application, status models.PaymentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusRows[app.ID] = &models.UserApplicationStatus{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		UserProfileID: app.UserProfileID,
		Status:        status,
		CreatedAt:     s.tick(),
	}
}

// AddPayment inserts a payment row for app created at createdAt.
func (s *Store) AddPayment(app *models.Application, reference string, status models.TransactionStatus, createdAt time.Time) *models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.PaymentTransaction{
		ID:               uuid.New(),
		PaymentReference: reference,
		Amount:           decimal.NewFromInt(50000),
		Currency:         models.CurrencyNGN,
		PaymentMethod:    models.PaymentMethodPaystack,
		Status:           status,
		CreatedAt:        createdAt,
	}
	if app != nil {
		id := app.ID
		p.ApplicationID = &id
	}
	s.Payments = append(s.Payments, p)
	return p
}

// AddEnrollment inserts an enrollment directly.
func (s *Store) AddEnrollment(app *models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := app.ID
	s.Enrollments = append(s.Enrollments, &models.Enrollment{
		ID:               uuid.New(),
		UserProfileID:    app.UserProfileID,
		CohortID:         app.CohortID,
		ApplicationID:    &id,
		EnrollmentStatus: models.EnrollmentEnrolled,
		CreatedAt:        s.tick(),
	})
}

// Payment returns a copy of the row with reference, or nil.
func (s *Store) Payment(reference string) *models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Payments {
		if p.PaymentReference == reference {
			cp := *p
			return &cp
		}
	}
	return nil
}

// App returns a copy of the stored application.
func (s *Store) App(id uuid.UUID) models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.Applications[id]
}

// StatusRow returns a copy of the stored status row, or nil.
func (s *Store) StatusRow(id uuid.UUID) *models.UserApplicationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.StatusRows[id]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}
