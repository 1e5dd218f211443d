package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityKeyGranted            ActivityType = "key_granted"
	ActivityKeyGrantFailed        ActivityType = "key_grant_failed"
	ActivityKeyGrantAttemptFailed ActivityType = "key_grant_attempt_failed"
	ActivityPaymentReconciled     ActivityType = "payment_reconciled"
	ActivityEnrollmentReconciled  ActivityType = "enrollment_reconciled"
)

// UserActivity is an append-only audit record. Key grant attempts are stored
// here with their data in ActivityData.
type UserActivity struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserProfileID uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_profile_id" validate:"required"`
	ActivityType  ActivityType   `gorm:"type:varchar(50);not null;index" json:"activity_type" validate:"required"`
	ActivityData  datatypes.JSON `gorm:"type:jsonb" json:"activity_data"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (UserActivity) TableName() string {
	return "user_activities"
}

func (a *UserActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// KeyGrantData is the ActivityData payload of key grant activities.
type KeyGrantData struct {
	CohortID               string `json:"cohortId,omitempty"`
	ApplicationID          string `json:"applicationId,omitempty"`
	LockAddress            string `json:"lockAddress"`
	WalletAddress          string `json:"walletAddress"`
	TransactionHash        string `json:"transactionHash,omitempty"`
	Error                  string `json:"error,omitempty"`
	AttemptNumber          int    `json:"attemptNumber,omitempty"`
	Attempts               int    `json:"attempts"`
	RequiresReconciliation bool   `json:"requiresReconciliation,omitempty"`
}

// Decode unmarshals ActivityData into v.
func (a *UserActivity) Decode(v any) error {
	return json.Unmarshal(a.ActivityData, v)
}
