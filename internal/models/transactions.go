package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionStatus string
type PaymentMethod string
type Currency string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionSuccess    TransactionStatus = "success"
	TransactionFailed     TransactionStatus = "failed"
)

const (
	PaymentMethodPaystack   PaymentMethod = "paystack"
	PaymentMethodBlockchain PaymentMethod = "blockchain"
)

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
)

// IsTerminal reports whether no further transition is expected.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccess || s == TransactionFailed
}

type PaymentTransaction struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID    *uuid.UUID        `gorm:"type:uuid;index" json:"application_id,omitempty"`
	PaymentReference string            `gorm:"uniqueIndex;not null" json:"payment_reference" validate:"required"`
	TransactionHash  *string           `gorm:"index" json:"transaction_hash,omitempty"`
	Amount           decimal.Decimal   `gorm:"type:numeric(18,2);not null;default:0" json:"amount"`
	Currency         Currency          `gorm:"type:varchar(8);not null" json:"currency" validate:"required,oneof=NGN USD"`
	PaymentMethod    PaymentMethod     `gorm:"type:varchar(20);not null" json:"payment_method" validate:"required,oneof=paystack blockchain"`
	Status           TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" validate:"required,oneof=pending processing success failed"`
	NetworkChainID   *int64            `json:"network_chain_id,omitempty"`
	Metadata         datatypes.JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`
	// LastCheckedAt is when the sweeper last re-verified the row.
	LastCheckedAt *time.Time `gorm:"index" json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Age is how long the row has existed as of now.
func (p *PaymentTransaction) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
