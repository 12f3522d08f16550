package entitlement

import "time"

// Derive recomputes every derived field of rec in place. It must run before
// each write of a record; the steps are ordered and each one only reads
// values settled by the steps before it. Running it twice on the same input
// changes nothing the second time.
func Derive(rec *Record, cat *Catalog, now time.Time) {
	fillLimits(rec, cat)
	deriveMoney(rec)
	expireIfDue(rec, now)
	setNextBilling(rec)
	stampCancellation(rec, now)
	fillFeatures(rec, cat)
}

func fillLimits(rec *Record, cat *Catalog) {
	if rec.Max == nil {
		rec.Max = make(map[LimitKey]int64, len(cat.Keys))
	}
	if rec.Current == nil {
		rec.Current = make(map[LimitKey]int64, len(cat.Keys))
	}
	defaults := cat.DefaultLimitsFor(rec.Plan)
	for _, k := range cat.Keys {
		if _, ok := rec.Max[k]; !ok {
			rec.Max[k] = defaults[k]
		}
		if _, ok := rec.Current[k]; !ok {
			rec.Current[k] = 0
		}
	}
}

func deriveMoney(rec *Record) {
	rec.BalAmount = max(0, rec.InvoiceAmount-rec.PaidAmount)
	rec.IsPaid = rec.PaidAmount >= rec.InvoiceAmount
}

// Only active records expire; trial and canceled are left alone.
func expireIfDue(rec *Record, now time.Time) {
	if rec.Status == StatusActive && now.After(rec.EndDate) {
		rec.Status = StatusExpired
	}
}

func setNextBilling(rec *Record) {
	if rec.IsAutoRenew && rec.Status == StatusActive {
		next := rec.EndDate
		rec.NextBillingDate = &next
	}
}

func stampCancellation(rec *Record, now time.Time) {
	if rec.Status == StatusCanceled && rec.CanceledAt == nil {
		at := now
		rec.CanceledAt = &at
	}
}

func fillFeatures(rec *Record, cat *Catalog) {
	if len(rec.Features) == 0 {
		rec.Features = cat.DefaultFeaturesFor(rec.Plan)
	}
}
