package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SubscriptionPayment is one accepted payment against a church or user
// subscription. Rows are written in the same transaction as the
// subscription update and never changed afterwards.
type SubscriptionPayment struct {
	BaseModel
	SubscriptionID uuid.UUID `gorm:"type:uuid;index;not null"`
	Kind           string    `gorm:"size:16;index;not null"`
	OwnerID        uuid.UUID `gorm:"type:uuid;index"`

	AmountMinor  int64 `gorm:"not null"`
	BalanceAfter int64 `gorm:"not null"`
	PaidAt       int64 `gorm:"index;not null"`

	// free-form receipt number, cheque id, bank ref...
	Reference  string `gorm:"size:128"`
	RecordedBy string `gorm:"size:64"`
	Metadata   datatypes.JSON
}
