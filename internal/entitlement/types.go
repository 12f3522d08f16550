package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies who owns a subscription.
type Kind string

const (
	KindChurch Kind = "church"
	KindUser   Kind = "user"
)

type Plan string

const (
	// church tiers
	PlanBasic      Plan = "basic"
	PlanStandard   Plan = "standard"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"

	// user tiers
	PlanConnect Plan = "connect"
	PlanEngage  Plan = "engage"
	PlanServe   Plan = "serve"
)

type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// LimitKey names a max/current usage pair.
type LimitKey string

const (
	LimitUsers    LimitKey = "users"
	LimitBranches LimitKey = "branches"
	LimitMembers  LimitKey = "members"

	LimitSmallGroupsLead LimitKey = "small_groups_lead"
	LimitEventsManage    LimitKey = "events_manage"
)

// Unlimited on a max value disables the ceiling.
const Unlimited int64 = -1

// Record is the subscription of a church or a user. Derived fields
// (BalAmount, IsPaid, Status transitions, NextBillingDate, CanceledAt,
// default limits and features) are only written by Derive.
type Record struct {
	ID      uuid.UUID
	Kind    Kind
	OwnerID uuid.UUID
	Plan    Plan
	Status  Status

	InvoiceAmount int64
	PaidAmount    int64
	BalAmount     int64
	IsPaid        bool

	// A key missing from Max is unset and gets the plan default.
	Max     map[LimitKey]int64
	Current map[LimitKey]int64

	Features []string

	StartDate       time.Time
	EndDate         time.Time
	IsAutoRenew     bool
	NextBillingDate *time.Time
	LastPaymentDate *time.Time
	CanceledAt      *time.Time
	CancelReason    string
	BillingEmail    string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate without touching the
// original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Max = copyLimits(r.Max)
	out.Current = copyLimits(r.Current)
	if r.Features != nil {
		out.Features = append([]string(nil), r.Features...)
	}
	out.NextBillingDate = copyTime(r.NextBillingDate)
	out.LastPaymentDate = copyTime(r.LastPaymentDate)
	out.CanceledAt = copyTime(r.CanceledAt)
	return &out
}

func copyLimits(m map[LimitKey]int64) map[LimitKey]int64 {
	if m == nil {
		return nil
	}
	out := make(map[LimitKey]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
