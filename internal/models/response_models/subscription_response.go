package response_models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"churchhub/internal/entitlement"
	"churchhub/internal/models/db_models"
)

type SubscriptionResponse struct {
	ID      uuid.UUID `json:"id"`
	Kind    string    `json:"kind"`
	OwnerID uuid.UUID `json:"owner_id"`
	Plan    string    `json:"plan"`
	Status  string    `json:"status"`

	InvoiceAmount int64 `json:"invoice_amount"`
	PaidAmount    int64 `json:"paid_amount"`
	BalAmount     int64 `json:"bal_amount"`
	IsPaid        bool  `json:"is_paid"`

	Max      map[entitlement.LimitKey]int64 `json:"max"`
	Current  map[entitlement.LimitKey]int64 `json:"current"`
	Features []string                       `json:"features"`

	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	IsAutoRenew     bool       `json:"is_auto_renew"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	BillingEmail    string     `json:"billing_email,omitempty"`

	DaysRemaining int  `json:"days_remaining"`
	IsNearExpiry  bool `json:"is_near_expiry"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSubscriptionResponse renders rec with its dates in loc.
func NewSubscriptionResponse(rec *entitlement.Record, now time.Time, loc *time.Location) SubscriptionResponse {
	in := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := t.In(loc)
		return &v
	}
	features := rec.Features
	if features == nil {
		features = []string{}
	}
	return SubscriptionResponse{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		OwnerID:         rec.OwnerID,
		Plan:            string(rec.Plan),
		Status:          string(rec.Status),
		InvoiceAmount:   rec.InvoiceAmount,
		PaidAmount:      rec.PaidAmount,
		BalAmount:       rec.BalAmount,
		IsPaid:          rec.IsPaid,
		Max:             rec.Max,
		Current:         rec.Current,
		Features:        features,
		StartDate:       rec.StartDate.In(loc),
		EndDate:         rec.EndDate.In(loc),
		IsAutoRenew:     rec.IsAutoRenew,
		NextBillingDate: in(rec.NextBillingDate),
		LastPaymentDate: in(rec.LastPaymentDate),
		CanceledAt:      in(rec.CanceledAt),
		CancelReason:    rec.CancelReason,
		BillingEmail:    rec.BillingEmail,
		DaysRemaining:   rec.DaysRemaining(now),
		IsNearExpiry:    rec.IsNearExpiry(now),
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt.In(loc),
		UpdatedAt:       rec.UpdatedAt.In(loc),
	}
}

func NewSubscriptionResponses(recs []*entitlement.Record, now time.Time, loc *time.Location) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewSubscriptionResponse(rec, now, loc))
	}
	return out
}

type EntitlementsResponse struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Kind           string    `json:"kind"`
	Plan           string    `json:"plan"`
	Status         string    `json:"status"`
	entitlement.Snapshot

	// only set when asked for with ?feature= / ?limit=
	HasFeature *bool `json:"has_feature,omitempty"`
	CanPerform *bool `json:"can_perform,omitempty"`
	IsOver     *bool `json:"is_over_limit,omitempty"`
}

type PaymentResponse struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	AmountMinor    int64           `json:"amount_minor"`
	BalanceAfter   int64           `json:"balance_after"`
	PaidAt         time.Time       `json:"paid_at"`
	Reference      string          `json:"reference,omitempty"`
	RecordedBy     string          `json:"recorded_by,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

func NewPaymentResponse(p db_models.SubscriptionPayment, loc *time.Location) PaymentResponse {
	out := PaymentResponse{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		AmountMinor:    p.AmountMinor,
		BalanceAfter:   p.BalanceAfter,
		PaidAt:         time.Unix(p.PaidAt, 0).In(loc),
		Reference:      p.Reference,
		RecordedBy:     p.RecordedBy,
	}
	if len(p.Metadata) > 0 {
		out.Metadata = json.RawMessage(p.Metadata)
	}
	return out
}

type PaymentReceipt struct {
	Subscription SubscriptionResponse `json:"subscription"`
	Payment      PaymentResponse      `json:"payment"`
}
