package db_models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"churchhub/internal/entitlement"
)

// SubscriptionFields are the columns shared by church and user
// subscriptions. Dates are unix seconds.
type SubscriptionFields struct {
	BaseModel
	Plan   string `gorm:"size:32;index"`
	Status string `gorm:"size:16;index"`

	InvoiceAmount int64 `gorm:"not null"`
	PaidAmount    int64 `gorm:"not null"`
	BalAmount     int64 `gorm:"not null"`
	IsPaid        bool

	Features datatypes.JSONSlice[string]

	StartDate       int64 `gorm:"not null"`
	EndDate         int64 `gorm:"not null;index"`
	IsAutoRenew     bool
	NextBillingDate *int64
	LastPaymentDate *int64
	CanceledAt      *int64
	CancelReason    string
	BillingEmail    string

	// optimistic concurrency; every successful update bumps it
	Version int64 `gorm:"not null"`
}

func (f *SubscriptionFields) Fields() *SubscriptionFields { return f }

// limitField binds one limit key to its max/current columns. A nil max
// column is an unset limit.
type limitField struct {
	key     entitlement.LimitKey
	max     **int64
	current *int64
}

func (f *SubscriptionFields) toRecord(kind entitlement.Kind, owner uuid.UUID, limits []limitField) *entitlement.Record {
	rec := &entitlement.Record{
		ID:              f.ID,
		Kind:            kind,
		OwnerID:         owner,
		Plan:            entitlement.Plan(f.Plan),
		Status:          entitlement.Status(f.Status),
		InvoiceAmount:   f.InvoiceAmount,
		PaidAmount:      f.PaidAmount,
		BalAmount:       f.BalAmount,
		IsPaid:          f.IsPaid,
		Max:             make(map[entitlement.LimitKey]int64, len(limits)),
		Current:         make(map[entitlement.LimitKey]int64, len(limits)),
		StartDate:       fromUnix(f.StartDate),
		EndDate:         fromUnix(f.EndDate),
		IsAutoRenew:     f.IsAutoRenew,
		NextBillingDate: fromUnixPtr(f.NextBillingDate),
		LastPaymentDate: fromUnixPtr(f.LastPaymentDate),
		CanceledAt:      fromUnixPtr(f.CanceledAt),
		CancelReason:    f.CancelReason,
		BillingEmail:    f.BillingEmail,
		Version:         f.Version,
		CreatedAt:       fromUnix(f.CreatedAt),
		UpdatedAt:       fromUnix(f.UpdatedAt),
	}
	if len(f.Features) > 0 {
		rec.Features = append([]string{}, f.Features...)
	}
	for _, l := range limits {
		if *l.max != nil {
			rec.Max[l.key] = **l.max
		}
		rec.Current[l.key] = *l.current
	}
	return rec
}

func (f *SubscriptionFields) fromRecord(rec *entitlement.Record, limits []limitField) {
	f.ID = rec.ID
	f.Plan = string(rec.Plan)
	f.Status = string(rec.Status)
	f.InvoiceAmount = rec.InvoiceAmount
	f.PaidAmount = rec.PaidAmount
	f.BalAmount = rec.BalAmount
	f.IsPaid = rec.IsPaid
	f.Features = datatypes.JSONSlice[string](append([]string{}, rec.Features...))
	f.StartDate = toUnix(rec.StartDate)
	f.EndDate = toUnix(rec.EndDate)
	f.IsAutoRenew = rec.IsAutoRenew
	f.NextBillingDate = toUnixPtr(rec.NextBillingDate)
	f.LastPaymentDate = toUnixPtr(rec.LastPaymentDate)
	f.CanceledAt = toUnixPtr(rec.CanceledAt)
	f.CancelReason = rec.CancelReason
	f.BillingEmail = rec.BillingEmail
	f.Version = rec.Version
	f.CreatedAt = toUnix(rec.CreatedAt)
	f.UpdatedAt = toUnix(rec.UpdatedAt)
	for _, l := range limits {
		if v, ok := rec.Max[l.key]; ok {
			*l.max = &v
		} else {
			*l.max = nil
		}
		*l.current = rec.Current[l.key]
	}
}

func fromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func fromUnixPtr(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := fromUnix(*sec)
	return &t
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func toUnixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := toUnix(*t)
	return &v
}
