package request_models

import "time"

type CreateSubscriptionRequest struct {
	OwnerID       string     `json:"owner_id" binding:"required,uuid"`
	Plan          string     `json:"plan" binding:"required"`
	InvoiceAmount int64      `json:"invoice_amount"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	IsAutoRenew   bool       `json:"is_auto_renew"`
	BillingEmail  string     `json:"billing_email" binding:"omitempty,email"`
	// explicit overrides; anything left out comes from the plan
	Limits   map[string]int64 `json:"limits"`
	Features []string         `json:"features"`
}

// UpdateSubscriptionRequest is a partial update; nil fields are kept.
type UpdateSubscriptionRequest struct {
	Plan          *string          `json:"plan"`
	InvoiceAmount *int64           `json:"invoice_amount"`
	IsAutoRenew   *bool            `json:"is_auto_renew"`
	EndDate       *time.Time       `json:"end_date"`
	BillingEmail  *string          `json:"billing_email" binding:"omitempty,email"`
	Limits        map[string]int64 `json:"limits"`
	Features      []string         `json:"features"`
}

type RecordPaymentRequest struct {
	Amount    int64          `json:"amount"`
	Reference string         `json:"reference" binding:"max=128"`
	Metadata  map[string]any `json:"metadata"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type RenewSubscriptionRequest struct {
	Months int `json:"months"`
}

type UpdateUsageRequest struct {
	Count *int64 `json:"count" binding:"required"`
}

type ListSubscriptionsQuery struct {
	// active | expired | near_expiry, or a stored status (trial, canceled...)
	Status   string `form:"status"`
	Days     int    `form:"days"`
	OwnerID  string `form:"owner_id" binding:"omitempty,uuid"`
	Plan     string `form:"plan"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
