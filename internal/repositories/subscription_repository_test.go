package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"churchhub/internal/entitlement"
	"churchhub/internal/infra"
	"churchhub/internal/models/db_models"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.AutoMigrate(db))
	return db
}

func newChurchRecord(t *testing.T, plan entitlement.Plan, status entitlement.Status, end time.Time) *entitlement.Record {
	t.Helper()
	rec := &entitlement.Record{
		ID:            uuid.New(),
		Kind:          entitlement.KindChurch,
		OwnerID:       uuid.New(),
		Plan:          plan,
		Status:        status,
		InvoiceAmount: 10000,
		StartDate:     end.AddDate(0, -1, 0),
		EndDate:       end,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	entitlement.Derive(rec, entitlement.DefaultChurchCatalog(), testNow)
	return rec
}

func TestSubscriptionRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewChurchSubscriptionRepository(openTestDB(t))
	rec := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusTrial, testNow.AddDate(0, 1, 0))

	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, got)
	assert.Equal(t, int64(50), got.Max[entitlement.LimitUsers])
	assert.Equal(t, entitlement.DefaultChurchCatalog().DefaultFeaturesFor(entitlement.PlanBasic), got.Features)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSubscriptionRepository_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewChurchSubscriptionRepository(openTestDB(t))
	rec := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusTrial, testNow.AddDate(0, 1, 0))
	require.NoError(t, repo.Create(ctx, rec))

	stale := rec.Clone()

	rec.Current[entitlement.LimitUsers] = 12
	rec.Status = entitlement.StatusActive
	require.NoError(t, repo.Update(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	stale.PaidAmount = 500
	err := repo.Update(ctx, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(1), stale.Version, "rejected update leaves the record alone")

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Current[entitlement.LimitUsers])
	assert.Equal(t, int64(0), got.PaidAmount)
	assert.Equal(t, entitlement.StatusActive, got.Status)
}

func TestSubscriptionRepository_UpdateWritesZeroValues(t *testing.T) {
	ctx := context.Background()
	repo := NewChurchSubscriptionRepository(openTestDB(t))
	rec := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusActive, testNow.AddDate(0, 1, 0))
	rec.IsAutoRenew = true
	rec.Current[entitlement.LimitMembers] = 40
	require.NoError(t, repo.Create(ctx, rec))

	rec.IsAutoRenew = false
	rec.Current[entitlement.LimitMembers] = 0
	rec.NextBillingDate = nil
	delete(rec.Max, entitlement.LimitBranches)
	require.NoError(t, repo.Update(ctx, rec))

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAutoRenew)
	assert.Equal(t, int64(0), got.Current[entitlement.LimitMembers])
	assert.Nil(t, got.NextBillingDate)
	_, ok := got.Max[entitlement.LimitBranches]
	assert.False(t, ok)
}

func TestSubscriptionRepository_UpdateWithPayment(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewChurchSubscriptionRepository(db)
	rec := newChurchRecord(t, entitlement.PlanStandard, entitlement.StatusActive, testNow.AddDate(0, 1, 0))
	require.NoError(t, repo.Create(ctx, rec))

	rec.PaidAmount = 4000
	rec.BalAmount = 6000
	payment := &db_models.SubscriptionPayment{
		SubscriptionID: rec.ID,
		Kind:           string(entitlement.KindChurch),
		OwnerID:        rec.OwnerID,
		AmountMinor:    4000,
		BalanceAfter:   6000,
		PaidAt:         testNow.Unix(),
		Reference:      "cheque 118",
	}
	require.NoError(t, repo.UpdateWithPayment(ctx, rec, payment))
	assert.Equal(t, int64(2), rec.Version)

	payments, err := repo.ListPayments(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(4000), payments[0].AmountMinor)
	assert.Equal(t, "cheque 118", payments[0].Reference)

	// a stale write leaves no ledger row behind
	stale := rec.Clone()
	stale.Version = 1
	err = repo.UpdateWithPayment(ctx, stale, &db_models.SubscriptionPayment{
		SubscriptionID: rec.ID,
		Kind:           string(entitlement.KindChurch),
		AmountMinor:    100,
		PaidAt:         testNow.Unix(),
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	payments, err = repo.ListPayments(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSubscriptionRepository_BulkHelpers(t *testing.T) {
	ctx := context.Background()
	repo := NewChurchSubscriptionRepository(openTestDB(t))

	activeLong := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusActive, testNow.AddDate(0, 2, 0))
	activeSoon := newChurchRecord(t, entitlement.PlanPremium, entitlement.StatusActive, testNow.Add(3*24*time.Hour))
	trialSoon := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusTrial, testNow.Add(7*24*time.Hour))
	trialLater := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusTrial, testNow.Add(7*24*time.Hour+time.Minute))
	expired := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusExpired, testNow.AddDate(0, -1, 0))
	canceled := newChurchRecord(t, entitlement.PlanPremium, entitlement.StatusCanceled, testNow.Add(2*24*time.Hour))
	for _, rec := range []*entitlement.Record{activeLong, activeSoon, trialSoon, trialLater, expired, canceled} {
		require.NoError(t, repo.Create(ctx, rec))
	}

	// stored as active but its period ended after the last write
	later := testNow.Add(4 * 24 * time.Hour)

	ids := func(recs []*entitlement.Record, err error) []uuid.UUID {
		require.NoError(t, err)
		out := make([]uuid.UUID, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []uuid.UUID{activeSoon.ID, activeLong.ID}, ids(repo.FindActive(ctx, testNow)))
	assert.Equal(t, []uuid.UUID{activeLong.ID}, ids(repo.FindActive(ctx, later)))

	assert.Equal(t, []uuid.UUID{expired.ID}, ids(repo.FindExpired(ctx, testNow)))
	assert.Equal(t, []uuid.UUID{expired.ID, activeSoon.ID}, ids(repo.FindExpired(ctx, later)))
	assert.Equal(t, []uuid.UUID{activeSoon.ID}, ids(repo.FindActiveDue(ctx, later)))
	assert.Empty(t, ids(repo.FindActiveDue(ctx, testNow)))

	assert.Equal(t, []uuid.UUID{activeSoon.ID, trialSoon.ID}, ids(repo.FindNearExpiry(ctx, testNow, 7)))
	assert.Equal(t, []uuid.UUID{activeSoon.ID}, ids(repo.FindNearExpiry(ctx, testNow, 3)))

	assert.ElementsMatch(t, []uuid.UUID{activeSoon.ID, canceled.ID}, ids(repo.FindByPlan(ctx, entitlement.PlanPremium)))
	assert.Equal(t, []uuid.UUID{expired.ID}, ids(repo.FindByOwner(ctx, expired.OwnerID)))
	assert.Empty(t, ids(repo.FindByOwner(ctx, uuid.New())))
}

func TestSubscriptionRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewChurchSubscriptionRepository(openTestDB(t))
	owner := uuid.New()
	for i := 0; i < 3; i++ {
		rec := newChurchRecord(t, entitlement.PlanBasic, entitlement.StatusActive, testNow.AddDate(0, 1, 0))
		rec.OwnerID = owner
		rec.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, rec))
	}
	other := newChurchRecord(t, entitlement.PlanPremium, entitlement.StatusTrial, testNow.AddDate(0, 1, 0))
	require.NoError(t, repo.Create(ctx, other))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := repo.List(ctx, ListFilter{OwnerID: &owner, PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, testNow, mine[0].CreatedAt, "newest first, so the oldest lands on page 2")

	trials, err := repo.List(ctx, ListFilter{Status: entitlement.StatusTrial, Plan: entitlement.PlanPremium})
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, other.ID, trials[0].ID)
}

func TestSubscriptionRepository_KindsAreSeparate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	churches, err := NewSubscriptionRepository(db, entitlement.KindChurch)
	require.NoError(t, err)
	users, err := NewSubscriptionRepository(db, entitlement.KindUser)
	require.NoError(t, err)
	_, err = NewSubscriptionRepository(db, "parish")
	assert.Error(t, err)

	rec := &entitlement.Record{
		ID:        uuid.New(),
		Kind:      entitlement.KindUser,
		OwnerID:   uuid.New(),
		Plan:      entitlement.PlanEngage,
		Status:    entitlement.StatusTrial,
		StartDate: testNow,
		EndDate:   testNow.AddDate(0, 1, 0),
	}
	entitlement.Derive(rec, entitlement.DefaultUserCatalog(), testNow)
	require.NoError(t, users.Create(ctx, rec))

	got, err := users.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Max[entitlement.LimitEventsManage])

	fromChurches, err := churches.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, fromChurches)
}
