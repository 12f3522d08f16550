package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimitPredicates_Boundaries(t *testing.T) {
	tests := []struct {
		name        string
		max, cur    int64
		over, canDo bool
	}{
		{"below", 5, 4, false, true},
		{"at limit", 5, 5, false, false},
		{"over", 5, 6, true, false},
		{"zero limit", 0, 0, false, false},
		{"unlimited", Unlimited, 1_000_000, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{
				Max:     map[LimitKey]int64{LimitUsers: tt.max},
				Current: map[LimitKey]int64{LimitUsers: tt.cur},
			}
			assert.Equal(t, tt.over, rec.IsOverLimit(LimitUsers))
			assert.Equal(t, tt.canDo, rec.CanPerform(LimitUsers))
			assert.Equal(t, tt.over, rec.IsOverUserLimit())
			assert.Equal(t, tt.canDo, rec.CanAddUser())
		})
	}
}

func TestLimitPredicates_UnknownKey(t *testing.T) {
	rec := &Record{Max: map[LimitKey]int64{LimitUsers: 5}}

	assert.False(t, rec.IsOverLimit(LimitEventsManage))
	assert.False(t, rec.CanPerform(LimitEventsManage))
	assert.False(t, rec.CanManageEvents())
}

func TestHasFeature(t *testing.T) {
	rec := &Record{Features: []string{"pledges", "reports"}}

	assert.True(t, rec.HasFeature("reports"))
	assert.False(t, rec.HasFeature("api_access"))
	assert.False(t, (&Record{}).HasFeature("reports"))
}

func TestDaysRemaining(t *testing.T) {
	now := fixedNow

	tests := []struct {
		name    string
		end     time.Time
		days    int
		nearExp bool
		expired bool
	}{
		{"past", now.Add(-time.Hour), 0, false, true},
		{"exactly now", now, 0, false, false},
		{"one second left", now.Add(time.Second), 1, true, false},
		{"exactly one day", now.Add(day), 1, true, false},
		{"just over one day", now.Add(day + time.Minute), 2, true, false},
		{"seven days", now.Add(7 * day), 7, true, false},
		{"seven days and a bit", now.Add(7*day + time.Second), 8, false, false},
		{"a month", now.Add(30 * day), 30, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{EndDate: tt.end}
			assert.Equal(t, tt.days, rec.DaysRemaining(now))
			assert.Equal(t, tt.nearExp, rec.IsNearExpiry(now))
			assert.Equal(t, tt.expired, rec.IsExpired(now))
		})
	}
}

func TestQueriesDoNotMutate(t *testing.T) {
	rec := &Record{
		Plan:     PlanBasic,
		Status:   StatusActive,
		EndDate:  fixedNow.Add(-day),
		Max:      map[LimitKey]int64{LimitUsers: 1},
		Current:  map[LimitKey]int64{LimitUsers: 3},
		Features: []string{"members"},
	}
	before := rec.Clone()

	_ = rec.IsExpired(fixedNow)
	_ = rec.IsNearExpiry(fixedNow)
	_ = rec.IsOverLimit(LimitUsers)
	_ = rec.CanPerform(LimitUsers)
	_ = rec.HasFeature("members")
	snap := rec.Snapshot(fixedNow)

	assert.Equal(t, before, rec)
	assert.Equal(t, StatusActive, rec.Status, "queries never run the calculator")
	assert.True(t, snap.IsExpired)
	assert.True(t, snap.Limits[LimitUsers].IsOver)
	assert.False(t, snap.Limits[LimitUsers].CanPerform)
}

func TestSnapshot(t *testing.T) {
	rec := &Record{
		EndDate:  fixedNow.Add(3 * day),
		Max:      map[LimitKey]int64{LimitUsers: Unlimited, LimitBranches: 2},
		Current:  map[LimitKey]int64{LimitUsers: 90, LimitBranches: 2},
		Features: []string{"members"},
	}

	snap := rec.Snapshot(fixedNow)

	assert.Equal(t, 3, snap.DaysRemaining)
	assert.True(t, snap.IsNearExpiry)
	assert.Equal(t, LimitStatus{Max: Unlimited, Current: 90, Unlimited: true, CanPerform: true}, snap.Limits[LimitUsers])
	assert.Equal(t, LimitStatus{Max: 2, Current: 2}, snap.Limits[LimitBranches])
	assert.Equal(t, []string{"members"}, snap.Features)
}
