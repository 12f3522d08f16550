package entitlement

import (
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// Engine applies lifecycle operations to records of one kind. Every
// operation validates first, then mutates, then runs Derive, so a rejected
// call leaves the record untouched.
type Engine struct {
	catalog  *Catalog
	clock    Clock
	location *time.Location
}

// NewEngine builds an engine. loc is the calendar used for month arithmetic
// on renewals; nil means UTC.
func NewEngine(cat *Catalog, clock Clock, loc *time.Location) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{catalog: cat, clock: clock, location: loc}
}

func (e *Engine) Kind() Kind { return e.catalog.Kind }

func (e *Engine) Catalog() *Catalog { return e.catalog }

func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) Location() *time.Location { return e.location }

type NewParams struct {
	OwnerID       uuid.UUID
	Plan          Plan
	InvoiceAmount int64
	StartDate     time.Time
	EndDate       time.Time
	IsAutoRenew   bool
	BillingEmail  string
	// Optional explicit values; anything left out comes from the plan.
	Max      map[LimitKey]int64
	Features []string
}

// New creates a trial record with nothing paid and all derived fields
// filled. A zero StartDate means now; a zero EndDate means one month after
// the start.
func (e *Engine) New(p NewParams) (*Record, error) {
	now := e.clock.Now()
	if p.OwnerID == uuid.Nil {
		return nil, validationErr("owner_id", "is required")
	}
	if !e.catalog.HasPlan(p.Plan) {
		return nil, validationErr("plan", "%q is not a %s plan", p.Plan, e.catalog.Kind)
	}
	if p.InvoiceAmount < 0 {
		return nil, validationErr("invoice_amount", "must not be negative")
	}
	start := p.StartDate
	if start.IsZero() {
		start = now
	}
	end := p.EndDate
	if end.IsZero() {
		end = AddMonths(start.In(e.location), 1)
	}
	if !end.After(start) {
		return nil, validationErr("end_date", "must be after start_date")
	}
	if err := e.checkLimits(p.Max); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:            uuid.New(),
		Kind:          e.catalog.Kind,
		OwnerID:       p.OwnerID,
		Plan:          p.Plan,
		Status:        StatusTrial,
		InvoiceAmount: p.InvoiceAmount,
		StartDate:     start,
		EndDate:       end,
		IsAutoRenew:   p.IsAutoRenew,
		BillingEmail:  p.BillingEmail,
		Max:           copyLimits(p.Max),
		Features:      append([]string(nil), p.Features...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	Derive(rec, e.catalog, now)
	return rec, nil
}

// RecordPayment adds amount to the paid total. Overpaying and paying into a
// canceled subscription are rejected.
func (e *Engine) RecordPayment(rec *Record, amount int64) error {
	if amount <= 0 {
		return validationErr("amount", "must be greater than zero")
	}
	if rec.Status == StatusCanceled {
		return &InvalidStateError{Status: rec.Status, Message: "cannot record a payment on a canceled subscription"}
	}
	// PaidAmount+amount can overflow int64
	if outstanding := max(0, rec.InvoiceAmount-rec.PaidAmount); amount > outstanding {
		return validationErr("amount", "payment of %d exceeds outstanding balance of %d", amount, outstanding)
	}

	now := e.clock.Now()
	rec.PaidAmount += amount
	rec.LastPaymentDate = &now
	e.finish(rec, now)
	return nil
}

// Cancel stops the subscription. Canceling twice is a no-op: the first
// timestamp and reason are kept.
func (e *Engine) Cancel(rec *Record, reason string) {
	if rec.Status == StatusCanceled {
		return
	}
	now := e.clock.Now()
	rec.Status = StatusCanceled
	rec.IsAutoRenew = false
	rec.CanceledAt = &now
	rec.CancelReason = reason
	e.finish(rec, now)
}

// Renew extends EndDate by whole calendar months counted from the current
// EndDate, so unused time is kept, and reactivates the record whatever its
// status.
func (e *Engine) Renew(rec *Record, months int) error {
	if months <= 0 {
		return validationErr("months", "must be greater than zero")
	}
	now := e.clock.Now()
	rec.EndDate = AddMonths(rec.EndDate.In(e.location), months)
	rec.Status = StatusActive
	rec.CanceledAt = nil
	rec.CancelReason = ""
	e.finish(rec, now)
	return nil
}

// UpdateUsageCount sets the current usage of key. Going over the limit is
// allowed; IsOverLimit flags it.
func (e *Engine) UpdateUsageCount(rec *Record, key LimitKey, count int64) error {
	if count < 0 {
		return validationErr("count", "must not be negative")
	}
	if !e.catalog.HasLimit(key) {
		return validationErr("limit", "%q is not a %s limit", key, e.catalog.Kind)
	}
	now := e.clock.Now()
	if rec.Current == nil {
		rec.Current = make(map[LimitKey]int64)
	}
	rec.Current[key] = count
	e.finish(rec, now)
	return nil
}

type UpdateParams struct {
	Plan          *Plan
	InvoiceAmount *int64
	IsAutoRenew   *bool
	EndDate       *time.Time
	BillingEmail  *string
	Max           map[LimitKey]int64
	Features      []string
}

// Update edits the billing fields of a record. Switching plan drops the
// limits and features inherited from the previous plan so the new plan's
// defaults apply, unless explicit values come with the same call.
func (e *Engine) Update(rec *Record, p UpdateParams) error {
	if p.Plan != nil && !e.catalog.HasPlan(*p.Plan) {
		return validationErr("plan", "%q is not a %s plan", *p.Plan, e.catalog.Kind)
	}
	if p.InvoiceAmount != nil && *p.InvoiceAmount < 0 {
		return validationErr("invoice_amount", "must not be negative")
	}
	if p.EndDate != nil && !p.EndDate.After(rec.StartDate) {
		return validationErr("end_date", "must be after start_date")
	}
	if err := e.checkLimits(p.Max); err != nil {
		return err
	}

	now := e.clock.Now()
	if p.Plan != nil && *p.Plan != rec.Plan {
		rec.Plan = *p.Plan
		rec.Max = nil
		rec.Features = nil
	}
	if p.InvoiceAmount != nil {
		rec.InvoiceAmount = *p.InvoiceAmount
	}
	if p.IsAutoRenew != nil {
		rec.IsAutoRenew = *p.IsAutoRenew
	}
	if p.EndDate != nil {
		rec.EndDate = *p.EndDate
	}
	if p.BillingEmail != nil {
		rec.BillingEmail = *p.BillingEmail
	}
	if len(p.Max) > 0 {
		if rec.Max == nil {
			rec.Max = make(map[LimitKey]int64, len(p.Max))
		}
		for k, v := range p.Max {
			rec.Max[k] = v
		}
	}
	if p.Features != nil {
		rec.Features = append([]string{}, p.Features...)
	}
	e.finish(rec, now)
	return nil
}

// Refresh runs the calculator without changing any input field.
func (e *Engine) Refresh(rec *Record) {
	now := e.clock.Now()
	Derive(rec, e.catalog, now)
}

func (e *Engine) finish(rec *Record, now time.Time) {
	rec.UpdatedAt = now
	Derive(rec, e.catalog, now)
}

func (e *Engine) checkLimits(m map[LimitKey]int64) error {
	for k, v := range m {
		if !e.catalog.HasLimit(k) {
			return validationErr("limits", "%q is not a %s limit", k, e.catalog.Kind)
		}
		if v < Unlimited {
			return validationErr("limits", "%q must be -1 (unlimited) or >= 0", k)
		}
	}
	return nil
}
