package services

import (
	"context"
	"fmt"
	"time"

	"churchhub/internal/entitlement"
	resp "churchhub/internal/models/response_models"
	"churchhub/internal/repositories"
	"churchhub/pkg/utils"
)

const recentPaymentsLimit = 10

type DashboardService interface {
	BuildDashboard(ctx context.Context, kind entitlement.Kind, rng resp.TimeRange, currency string) (*resp.DashboardReport, error)
}

type dashboardService struct {
	repo           repositories.DashboardRepository
	clock          entitlement.Clock
	loc            *time.Location
	nearExpiryDays int
}

func NewDashboardService(repo repositories.DashboardRepository, clock entitlement.Clock, loc *time.Location, nearExpiryDays int) DashboardService {
	if clock == nil {
		clock = entitlement.SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	if nearExpiryDays <= 0 {
		nearExpiryDays = entitlement.NearExpiryDays
	}
	return &dashboardService{repo: repo, clock: clock, loc: loc, nearExpiryDays: nearExpiryDays}
}

// normalizeRange fills defaults and orders the bounds. The zone used for
// bucketing is resolved separately.
func normalizeRange(r resp.TimeRange, now time.Time) (resp.TimeRange, error) {
	out := r
	switch out.Interval {
	case "":
		out.Interval = "day"
	case "day", "week", "month":
	default:
		return out, &entitlement.ValidationError{Field: "interval", Message: "must be day, week or month"}
	}
	if out.End.IsZero() {
		out.End = now
	}
	if out.Start.IsZero() {
		out.Start = out.End.AddDate(0, 0, -30) // last 30 days default
	}
	if out.Start.After(out.End) {
		out.Start, out.End = out.End, out.Start
	}
	return out, nil
}

func (s *dashboardService) BuildDashboard(ctx context.Context, kind entitlement.Kind, rng resp.TimeRange, currency string) (*resp.DashboardReport, error) {
	if kind != entitlement.KindChurch && kind != entitlement.KindUser {
		return nil, utils.ErrUnknownKind
	}
	now := s.clock.Now()
	rng, err := normalizeRange(rng, now)
	if err != nil {
		return nil, err
	}
	loc := s.loc
	if rng.Timezone != "" {
		if loc, err = time.LoadLocation(rng.Timezone); err != nil {
			return nil, &entitlement.ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown zone %q", rng.Timezone)}
		}
	} else {
		rng.Timezone = loc.String()
	}

	// ---------- Counts ----------
	statusRows, err := s.repo.CountByStatus(ctx, kind)
	if err != nil {
		return nil, dbErr(err)
	}
	var kpis resp.KPIBlock
	for _, r := range statusRows {
		kpis.TotalSubscriptions += r.Count
		switch entitlement.Status(r.Status) {
		case entitlement.StatusTrial:
			kpis.TrialSubscriptions = r.Count
		case entitlement.StatusActive:
			kpis.ActiveSubscriptions = r.Count
		case entitlement.StatusExpired:
			kpis.ExpiredSubscriptions = r.Count
		case entitlement.StatusCanceled:
			kpis.CanceledSubscriptions = r.Count
		}
	}

	if kpis.NewSubscriptions, err = s.repo.CountNewSubscriptions(ctx, kind, rng.Start, rng.End); err != nil {
		return nil, dbErr(err)
	}
	if kpis.NearExpiry, err = s.repo.CountNearExpiry(ctx, kind, now, s.nearExpiryDays); err != nil {
		return nil, dbErr(err)
	}

	// ---------- Money ----------
	money, err := s.repo.MoneyTotals(ctx, kind)
	if err != nil {
		return nil, dbErr(err)
	}
	kpis.InvoicedMinor = money.Invoiced
	kpis.PaidMinor = money.Paid
	kpis.OutstandingMinor = money.Outstanding
	if money.Invoiced > 0 {
		kpis.CollectionPct = float64(money.Paid) * 100.0 / float64(money.Invoiced)
	}

	// ---------- Churn ----------
	canceledInPeriod, err := s.repo.CountCanceledInPeriod(ctx, kind, rng.Start, rng.End)
	if err != nil {
		return nil, dbErr(err)
	}
	if kpis.TotalSubscriptions > 0 {
		kpis.ChurnPct = float64(canceledInPeriod) * 100.0 / float64(kpis.TotalSubscriptions)
	}

	// ---------- Revenue series ----------
	payRows, err := s.repo.PaymentsBetween(ctx, kind, rng.Start, rng.End)
	if err != nil {
		return nil, dbErr(err)
	}
	revenue := resp.RevenueSeries{
		Currency: currency,
		Points:   bucketPayments(payRows, rng.Start, rng.End, rng.Interval, loc),
	}
	for _, p := range revenue.Points {
		revenue.TotalMinor += p.Value
	}

	// ---------- Plan mix ----------
	planRows, err := s.repo.PlanMix(ctx, kind, now)
	if err != nil {
		return nil, dbErr(err)
	}
	var totalActive int64
	for _, r := range planRows {
		totalActive += r.Count
	}
	planMix := make([]resp.PlanMixItem, 0, len(planRows))
	for _, r := range planRows {
		var pct float64
		if totalActive > 0 {
			pct = float64(r.Count) * 100.0 / float64(totalActive)
		}
		planMix = append(planMix, resp.PlanMixItem{Plan: r.Plan, Count: r.Count, Percent: pct})
	}

	// ---------- Recent payments ----------
	recentRows, err := s.repo.RecentPayments(ctx, kind, recentPaymentsLimit)
	if err != nil {
		return nil, dbErr(err)
	}
	recent := make([]resp.PaymentResponse, 0, len(recentRows))
	for _, p := range recentRows {
		recent = append(recent, resp.NewPaymentResponse(p, loc))
	}

	return &resp.DashboardReport{
		Kind: string(kind),
		Range: resp.TimeRange{
			Start:    rng.Start.In(loc),
			End:      rng.End.In(loc),
			Interval: rng.Interval,
			Timezone: rng.Timezone,
		},
		KPIs:           kpis,
		Revenue:        revenue,
		PlanMix:        planMix,
		RecentPayments: recent,
	}, nil
}

// bucketPayments sums payments per interval in loc. Every bucket between
// start and end is present, empty ones with a zero value.
func bucketPayments(rows []repositories.PaymentAmountRow, start, end time.Time, interval string, loc *time.Location) []resp.SeriesPoint {
	var points []resp.SeriesPoint
	index := map[int64]int{}
	for b := bucketStart(start, interval, loc); !b.After(end); b = nextBucket(b, interval) {
		index[b.Unix()] = len(points)
		points = append(points, resp.SeriesPoint{Bucket: b})
	}
	for _, r := range rows {
		b := bucketStart(time.Unix(r.PaidAt, 0), interval, loc)
		if i, ok := index[b.Unix()]; ok {
			points[i].Value += r.AmountMinor
		}
	}
	return points
}

func bucketStart(t time.Time, interval string, loc *time.Location) time.Time {
	t = t.In(loc)
	switch interval {
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case "week":
		// weeks start on Monday
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func nextBucket(b time.Time, interval string) time.Time {
	switch interval {
	case "month":
		return b.AddDate(0, 1, 0)
	case "week":
		return b.AddDate(0, 0, 7)
	}
	return b.AddDate(0, 0, 1)
}

func dbErr(err error) error {
	return fmt.Errorf("%w: %w", utils.ErrDatabaseError, err)
}
