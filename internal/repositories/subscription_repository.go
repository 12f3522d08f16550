package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"churchhub/internal/entitlement"
	"churchhub/internal/models/db_models"
)

// ErrVersionConflict is returned by Update when the stored row was changed
// after the caller loaded it.
var ErrVersionConflict = errors.New("subscription was modified concurrently")

type ListFilter struct {
	OwnerID  *uuid.UUID
	Plan     entitlement.Plan
	Status   entitlement.Status
	Page     int
	PageSize int
}

type SubscriptionRepository interface {
	Kind() entitlement.Kind

	Create(ctx context.Context, rec *entitlement.Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Record, error)
	Update(ctx context.Context, rec *entitlement.Record) error
	UpdateWithPayment(ctx context.Context, rec *entitlement.Record, payment *db_models.SubscriptionPayment) error
	List(ctx context.Context, f ListFilter) ([]*entitlement.Record, error)

	FindActive(ctx context.Context, now time.Time) ([]*entitlement.Record, error)
	FindExpired(ctx context.Context, now time.Time) ([]*entitlement.Record, error)
	FindNearExpiry(ctx context.Context, now time.Time, days int) ([]*entitlement.Record, error)
	FindActiveDue(ctx context.Context, now time.Time) ([]*entitlement.Record, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entitlement.Record, error)
	FindByPlan(ctx context.Context, plan entitlement.Plan) ([]*entitlement.Record, error)

	ListPayments(ctx context.Context, subscriptionID uuid.UUID) ([]db_models.SubscriptionPayment, error)
}

type subscriptionRow[M any] interface {
	*M
	ToRecord() *entitlement.Record
	FromRecord(rec *entitlement.Record)
	OwnerColumn() string
	Fields() *db_models.SubscriptionFields
}

type subscriptionRepository[M any, P subscriptionRow[M]] struct {
	db   *gorm.DB
	kind entitlement.Kind
}

func NewChurchSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository[db_models.ChurchSubscription, *db_models.ChurchSubscription]{db: db, kind: entitlement.KindChurch}
}

func NewUserSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository[db_models.UserSubscription, *db_models.UserSubscription]{db: db, kind: entitlement.KindUser}
}

func NewSubscriptionRepository(db *gorm.DB, kind entitlement.Kind) (SubscriptionRepository, error) {
	switch kind {
	case entitlement.KindChurch:
		return NewChurchSubscriptionRepository(db), nil
	case entitlement.KindUser:
		return NewUserSubscriptionRepository(db), nil
	}
	return nil, errors.New("unknown subscription kind: " + string(kind))
}

func (r *subscriptionRepository[M, P]) Kind() entitlement.Kind { return r.kind }

func (r *subscriptionRepository[M, P]) ownerColumn() string {
	return P(new(M)).OwnerColumn()
}

// Create inserts rec as version 1 and copies the stored values back.
func (r *subscriptionRepository[M, P]) Create(ctx context.Context, rec *entitlement.Record) error {
	row := P(new(M))
	row.FromRecord(rec)
	row.Fields().Version = 1

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	*rec = *row.ToRecord()
	return nil
}

func (r *subscriptionRepository[M, P]) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Record, error) {
	row := P(new(M))
	err := r.db.WithContext(ctx).First(row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.ToRecord(), nil
}

// Update writes every column of rec if the stored version still equals
// rec.Version, then bumps the version.
func (r *subscriptionRepository[M, P]) Update(ctx context.Context, rec *entitlement.Record) error {
	stored, err := r.write(r.db.WithContext(ctx), rec)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

// UpdateWithPayment stores rec and appends payment to the ledger in one
// transaction. rec is only changed when both writes commit.
func (r *subscriptionRepository[M, P]) UpdateWithPayment(ctx context.Context, rec *entitlement.Record, payment *db_models.SubscriptionPayment) error {
	var stored *entitlement.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if stored, err = r.write(tx, rec); err != nil {
			return err
		}
		return tx.Create(payment).Error
	})
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

func (r *subscriptionRepository[M, P]) write(tx *gorm.DB, rec *entitlement.Record) (*entitlement.Record, error) {
	row := P(new(M))
	row.FromRecord(rec)
	prev := rec.Version
	row.Fields().Version = prev + 1

	res := tx.Model(row).
		Select("*").
		Omit("id", "created_at").
		Where("version = ?", prev).
		Updates(row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return row.ToRecord(), nil
}

func (r *subscriptionRepository[M, P]) List(ctx context.Context, f ListFilter) ([]*entitlement.Record, error) {
	q := r.db.WithContext(ctx)
	if f.OwnerID != nil {
		q = q.Where(r.ownerColumn()+" = ?", *f.OwnerID)
	}
	if f.Plan != "" {
		q = q.Where("plan = ?", f.Plan)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		q = q.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}
	return r.find(q.Order("created_at DESC, id ASC"))
}

// FindActive returns active rows whose period has not ended yet.
func (r *subscriptionRepository[M, P]) FindActive(ctx context.Context, now time.Time) ([]*entitlement.Record, error) {
	return r.find(r.db.WithContext(ctx).
		Where("status = ? AND end_date >= ?", entitlement.StatusActive, now.Unix()).
		Order("end_date ASC, id ASC"))
}

// FindExpired includes active rows that are past their end date but were
// not written since, so the result matches what a calculator pass would say.
func (r *subscriptionRepository[M, P]) FindExpired(ctx context.Context, now time.Time) ([]*entitlement.Record, error) {
	return r.find(r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND end_date < ?)", entitlement.StatusExpired, entitlement.StatusActive, now.Unix()).
		Order("end_date ASC, id ASC"))
}

func (r *subscriptionRepository[M, P]) FindNearExpiry(ctx context.Context, now time.Time, days int) ([]*entitlement.Record, error) {
	until := now.Add(time.Duration(days) * 24 * time.Hour)
	return r.find(r.db.WithContext(ctx).
		Where("status IN ?", []entitlement.Status{entitlement.StatusTrial, entitlement.StatusActive}).
		Where("end_date > ? AND end_date <= ?", now.Unix(), until.Unix()).
		Order("end_date ASC, id ASC"))
}

// FindActiveDue returns rows still stored as active although their end date
// has passed.
func (r *subscriptionRepository[M, P]) FindActiveDue(ctx context.Context, now time.Time) ([]*entitlement.Record, error) {
	return r.find(r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", entitlement.StatusActive, now.Unix()).
		Order("end_date ASC, id ASC"))
}

func (r *subscriptionRepository[M, P]) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entitlement.Record, error) {
	return r.find(r.db.WithContext(ctx).
		Where(r.ownerColumn()+" = ?", ownerID).
		Order("created_at DESC, id ASC"))
}

func (r *subscriptionRepository[M, P]) FindByPlan(ctx context.Context, plan entitlement.Plan) ([]*entitlement.Record, error) {
	return r.find(r.db.WithContext(ctx).
		Where("plan = ?", plan).
		Order("created_at DESC, id ASC"))
}

func (r *subscriptionRepository[M, P]) ListPayments(ctx context.Context, subscriptionID uuid.UUID) ([]db_models.SubscriptionPayment, error) {
	var payments []db_models.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND kind = ?", subscriptionID, r.kind).
		Order("paid_at DESC, created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *subscriptionRepository[M, P]) find(q *gorm.DB) ([]*entitlement.Record, error) {
	var rows []M
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entitlement.Record, 0, len(rows))
	for i := range rows {
		out = append(out, P(&rows[i]).ToRecord())
	}
	return out, nil
}
