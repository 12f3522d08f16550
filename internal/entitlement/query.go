package entitlement

import (
	"math"
	"slices"
	"time"
)

// NearExpiryDays is the window in which an unexpired record counts as
// about to expire.
const NearExpiryDays = 7

const day = 24 * time.Hour

// The predicates below only read fields already settled by Derive and never
// mutate the record.

func (r *Record) IsExpired(now time.Time) bool {
	return now.After(r.EndDate)
}

// DaysRemaining rounds partial days up and never goes below zero.
func (r *Record) DaysRemaining(now time.Time) int {
	left := r.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

func (r *Record) IsNearExpiry(now time.Time) bool {
	d := r.DaysRemaining(now)
	return d > 0 && d <= NearExpiryDays
}

// IsOverLimit reports current > max. Sitting exactly at the limit is not
// over it.
func (r *Record) IsOverLimit(key LimitKey) bool {
	limit, ok := r.Max[key]
	if !ok || limit == Unlimited {
		return false
	}
	return r.Current[key] > limit
}

// CanPerform reports whether one more unit of key may be consumed. At the
// limit the answer is already no.
func (r *Record) CanPerform(key LimitKey) bool {
	limit, ok := r.Max[key]
	if !ok {
		return false
	}
	if limit == Unlimited {
		return true
	}
	return r.Current[key] < limit
}

func (r *Record) HasFeature(name string) bool {
	return slices.Contains(r.Features, name)
}

func (r *Record) CanLeadSmallGroup() bool { return r.CanPerform(LimitSmallGroupsLead) }

func (r *Record) CanManageEvents() bool { return r.CanPerform(LimitEventsManage) }

func (r *Record) CanAddUser() bool { return r.CanPerform(LimitUsers) }

func (r *Record) IsOverUserLimit() bool { return r.IsOverLimit(LimitUsers) }

// LimitStatus is the usage view of one limit key.
type LimitStatus struct {
	Max        int64 `json:"max"`
	Current    int64 `json:"current"`
	Unlimited  bool  `json:"unlimited"`
	IsOver     bool  `json:"is_over"`
	CanPerform bool  `json:"can_perform"`
}

// Snapshot is every query predicate evaluated at one instant.
type Snapshot struct {
	IsExpired     bool                     `json:"is_expired"`
	DaysRemaining int                      `json:"days_remaining"`
	IsNearExpiry  bool                     `json:"is_near_expiry"`
	Limits        map[LimitKey]LimitStatus `json:"limits"`
	Features      []string                 `json:"features"`
}

func (r *Record) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		IsExpired:     r.IsExpired(now),
		DaysRemaining: r.DaysRemaining(now),
		IsNearExpiry:  r.IsNearExpiry(now),
		Limits:        make(map[LimitKey]LimitStatus, len(r.Max)),
		Features:      append([]string{}, r.Features...),
	}
	for k, m := range r.Max {
		s.Limits[k] = LimitStatus{
			Max:        m,
			Current:    r.Current[k],
			Unlimited:  m == Unlimited,
			IsOver:     r.IsOverLimit(k),
			CanPerform: r.CanPerform(k),
		}
	}
	return s
}
