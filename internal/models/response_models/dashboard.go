package response_models

import (
	"time"
)

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// "day" | "week" | "month"
	Interval string `json:"interval"`
	// Optional: timezone used for bucketing (defaults to UTC if empty)
	Timezone string `json:"timezone,omitempty"`
}

type KPIBlock struct {
	TotalSubscriptions    int64 `json:"total_subscriptions"`
	NewSubscriptions      int64 `json:"new_subscriptions"`
	TrialSubscriptions    int64 `json:"trial_subscriptions"`
	ActiveSubscriptions   int64 `json:"active_subscriptions"`
	ExpiredSubscriptions  int64 `json:"expired_subscriptions"`
	CanceledSubscriptions int64 `json:"canceled_subscriptions"`
	NearExpiry            int64 `json:"near_expiry"`

	// Money KPIs, minor units; canceled subscriptions excluded
	InvoicedMinor    int64   `json:"invoiced_minor"`
	PaidMinor        int64   `json:"paid_minor"`
	OutstandingMinor int64   `json:"outstanding_minor"`
	CollectionPct    float64 `json:"collection_pct"`
	ChurnPct         float64 `json:"churn_pct"` // canceled during period / total * 100
}

type SeriesPoint struct {
	Bucket time.Time `json:"bucket"`
	Value  int64     `json:"value"`
}

type RevenueSeries struct {
	Currency   string        `json:"currency"`
	Points     []SeriesPoint `json:"points"`
	TotalMinor int64         `json:"total_minor"`
}

type PlanMixItem struct {
	Plan    string  `json:"plan"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

type DashboardReport struct {
	Kind           string            `json:"kind"`
	Range          TimeRange         `json:"range"`
	KPIs           KPIBlock          `json:"kpis"`
	Revenue        RevenueSeries     `json:"revenue"`
	PlanMix        []PlanMixItem     `json:"plan_mix"`
	RecentPayments []PaymentResponse `json:"recent_payments"`
}
