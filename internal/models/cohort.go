package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Cohort struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	LockAddress string          `json:"lock_address,omitempty"`
	ChainID     int64           `json:"chain_id,omitempty"`
	KeyManagers datatypes.JSON  `gorm:"type:jsonb" json:"key_managers,omitempty"`
	FeeNGN      decimal.Decimal `gorm:"type:numeric(18,2);default:0" json:"fee_ngn"`
	FeeUSD      decimal.Decimal `gorm:"type:numeric(18,2);default:0" json:"fee_usd"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Cohort) TableName() string {
	return "cohorts"
}

// KeyManagerAddresses decodes the key manager list. Malformed JSON yields nil.
func (c *Cohort) KeyManagerAddresses() []string {
	if len(c.KeyManagers) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(c.KeyManagers, &out); err != nil {
		return nil
	}
	return out
}

// HasLock reports whether membership keys are issued for this cohort.
func (c *Cohort) HasLock() bool {
	return c.LockAddress != ""
}
