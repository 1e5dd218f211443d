package services

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Bootcamp/internal/chain"
	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

// Store is the transaction store as seen by the engines. store.GormStore
// implements it; every method returns store.ErrNotFound / store.ErrDuplicate
// for the conditions callers branch on.
type Store interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	UpdateApplication(ctx context.Context, id uuid.UUID, patch store.ApplicationPatch) error
	GetApplicationStatus(ctx context.Context, applicationID uuid.UUID) (*models.UserApplicationStatus, error)
	UpsertApplicationStatus(ctx context.Context, row *models.UserApplicationStatus) error
	AppendStatusAudit(ctx context.Context, entry *models.StatusAuditEntry) error
	LatestStatusAudit(ctx context.Context, applicationID uuid.UUID) (*models.StatusAuditEntry, error)

	GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)
	GetPaymentByHash(ctx context.Context, hash string) (*models.PaymentTransaction, error)
	LatestPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error)
	SuccessfulPaymentForApplication(ctx context.Context, applicationID uuid.UUID) (*models.PaymentTransaction, error)
	CreatePayment(ctx context.Context, p *models.PaymentTransaction) error
	UpdatePayment(ctx context.Context, reference string, patch store.PaymentPatch) error
	ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
	MarkPaymentChecked(ctx context.Context, reference string, at time.Time) error

	GetEnrollment(ctx context.Context, userProfileID uuid.UUID, cohortID string) (*models.Enrollment, error)
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error

	GetUserProfile(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	GetCohort(ctx context.Context, id string) (*models.Cohort, error)
	RecordActivity(ctx context.Context, a *models.UserActivity) error
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListOverview(ctx context.Context, f store.OverviewFilter) ([]models.ApplicationOverview, error)
}

// ErrGatewayNotFound is returned by a PaymentGateway for unknown references.
var ErrGatewayNotFound = errors.New("gateway: transaction not found")

// GatewayTransaction is the gateway's view of a payment.
type GatewayTransaction struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	PaidAt    string
	Metadata  map[string]any
}

type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type PaymentGateway interface {
	InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*GatewayTransaction, error)
}

// ChainClient reads receipts and writes membership grants. A missing receipt
// is reported as chain.ErrNotFound.
type ChainClient interface {
	TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash string) (found bool, pending bool, err error)
	HasValidKey(ctx context.Context, lockAddress, wallet string) (bool, error)
	GrantKey(ctx context.Context, p chain.GrantKeyParams) (string, error)
}

type Mailer interface {
	SendEnrollmentConfirmation(ctx context.Context, to, name, cohortName string) error
	SendKeyGrantFailureAlert(ctx context.Context, ev KeyGrantFailedEvent) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Locker hands out short-lived exclusive leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const (
	TopicPaymentConfirmed = "payment.confirmed"
	TopicKeyGrantFailed   = "keygrant.failed"
)

const (
	OriginCheckout  = "checkout"
	OriginReconcile = "reconcile"
	OriginAdmin     = "admin"
)

type PaymentConfirmedEvent struct {
	ApplicationID string `json:"application_id"`
	UserProfileID string `json:"user_profile_id"`
	Reference     string `json:"reference"`
	Method        string `json:"method"`
	ConfirmedAt   string `json:"confirmed_at"`
}

type KeyGrantFailedEvent struct {
	ApplicationID string `json:"application_id,omitempty"`
	UserProfileID string `json:"user_profile_id"`
	CohortID      string `json:"cohort_id,omitempty"`
	WalletAddress string `json:"wallet_address"`
	LockAddress   string `json:"lock_address"`
	Attempts      int    `json:"attempts"`
	Error         string `json:"error"`
	Origin        string `json:"origin"`
	FailedAt      string `json:"failed_at"`
}
