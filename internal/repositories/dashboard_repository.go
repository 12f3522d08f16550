package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"churchhub/internal/entitlement"
	dbm "churchhub/internal/models/db_models"
)

type DashboardRepository interface {
	// KPIs / counts
	CountByStatus(ctx context.Context, kind entitlement.Kind) ([]StatusCountRow, error)
	CountNewSubscriptions(ctx context.Context, kind entitlement.Kind, start, end time.Time) (int64, error)
	CountCanceledInPeriod(ctx context.Context, kind entitlement.Kind, start, end time.Time) (int64, error)
	CountNearExpiry(ctx context.Context, kind entitlement.Kind, now time.Time, days int) (int64, error)

	// Money
	MoneyTotals(ctx context.Context, kind entitlement.Kind) (MoneyTotalsRow, error)

	// Plan mix (active subs)
	PlanMix(ctx context.Context, kind entitlement.Kind, now time.Time) ([]PlanMixRow, error)

	// Payments
	PaymentsBetween(ctx context.Context, kind entitlement.Kind, start, end time.Time) ([]PaymentAmountRow, error)
	RecentPayments(ctx context.Context, kind entitlement.Kind, limit int) ([]dbm.SubscriptionPayment, error)
}

type dashboardRepository struct {
	db *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

// ---------- Row helpers ----------
type StatusCountRow struct {
	Status string `gorm:"column:status"`
	Count  int64  `gorm:"column:count"`
}

type MoneyTotalsRow struct {
	Invoiced    int64 `gorm:"column:invoiced"`
	Paid        int64 `gorm:"column:paid"`
	Outstanding int64 `gorm:"column:outstanding"`
}

type PlanMixRow struct {
	Plan  string `gorm:"column:plan"`
	Count int64  `gorm:"column:count"`
}

type PaymentAmountRow struct {
	PaidAt      int64 `gorm:"column:paid_at"`
	AmountMinor int64 `gorm:"column:amount_minor"`
}

// ---------- Helpers ----------
func modelFor(kind entitlement.Kind) (any, error) {
	switch kind {
	case entitlement.KindChurch:
		return &dbm.ChurchSubscription{}, nil
	case entitlement.KindUser:
		return &dbm.UserSubscription{}, nil
	}
	return nil, fmt.Errorf("unknown subscription kind %q", kind)
}

func (r *dashboardRepository) subs(ctx context.Context, kind entitlement.Kind) (*gorm.DB, error) {
	model, err := modelFor(kind)
	if err != nil {
		return nil, err
	}
	return r.db.WithContext(ctx).Model(model), nil
}

// ---------- Counts ----------
func (r *dashboardRepository) CountByStatus(ctx context.Context, kind entitlement.Kind) ([]StatusCountRow, error) {
	q, err := r.subs(ctx, kind)
	if err != nil {
		return nil, err
	}
	var rows []StatusCountRow
	err = q.Select("status, COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Find(&rows).Error
	return rows, err
}

func (r *dashboardRepository) CountNewSubscriptions(ctx context.Context, kind entitlement.Kind, start, end time.Time) (int64, error) {
	q, err := r.subs(ctx, kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).Count(&n).Error
	return n, err
}

func (r *dashboardRepository) CountCanceledInPeriod(ctx context.Context, kind entitlement.Kind, start, end time.Time) (int64, error) {
	q, err := r.subs(ctx, kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Where("status = ?", entitlement.StatusCanceled).
		Where("canceled_at IS NOT NULL AND canceled_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Count(&n).Error
	return n, err
}

func (r *dashboardRepository) CountNearExpiry(ctx context.Context, kind entitlement.Kind, now time.Time, days int) (int64, error) {
	q, err := r.subs(ctx, kind)
	if err != nil {
		return 0, err
	}
	until := now.Add(time.Duration(days) * 24 * time.Hour)
	var n int64
	err = q.Where("status IN ?", []entitlement.Status{entitlement.StatusTrial, entitlement.StatusActive}).
		Where("end_date > ? AND end_date <= ?", now.Unix(), until.Unix()).
		Count(&n).Error
	return n, err
}

// ---------- Money ----------
func (r *dashboardRepository) MoneyTotals(ctx context.Context, kind entitlement.Kind) (MoneyTotalsRow, error) {
	var row MoneyTotalsRow
	q, err := r.subs(ctx, kind)
	if err != nil {
		return row, err
	}
	// canceled subscriptions are not collected any more
	err = q.Select(`
			COALESCE(SUM(invoice_amount), 0) AS invoiced,
			COALESCE(SUM(paid_amount), 0) AS paid,
			COALESCE(SUM(bal_amount), 0) AS outstanding`).
		Where("status <> ?", entitlement.StatusCanceled).
		Scan(&row).Error
	return row, err
}

// ---------- Plan mix ----------
func (r *dashboardRepository) PlanMix(ctx context.Context, kind entitlement.Kind, now time.Time) ([]PlanMixRow, error) {
	q, err := r.subs(ctx, kind)
	if err != nil {
		return nil, err
	}
	var rows []PlanMixRow
	err = q.Select("plan, COUNT(*) AS count").
		Where("status = ? AND end_date >= ?", entitlement.StatusActive, now.Unix()).
		Group("plan").
		Order("count DESC, plan ASC").
		Find(&rows).Error
	return rows, err
}

// ---------- Payments ----------

// PaymentsBetween returns raw amounts; bucketing happens in the service so
// the query stays portable across postgres and sqlite.
func (r *dashboardRepository) PaymentsBetween(ctx context.Context, kind entitlement.Kind, start, end time.Time) ([]PaymentAmountRow, error) {
	var rows []PaymentAmountRow
	err := r.db.WithContext(ctx).
		Model(&dbm.SubscriptionPayment{}).
		Select("paid_at, amount_minor").
		Where("kind = ?", kind).
		Where("paid_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Order("paid_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *dashboardRepository) RecentPayments(ctx context.Context, kind entitlement.Kind, limit int) ([]dbm.SubscriptionPayment, error) {
	var rows []dbm.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("paid_at DESC, created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
