package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"churchhub/internal/entitlement"
	"churchhub/internal/infra"
	"churchhub/internal/models/request_models"
	"churchhub/internal/repositories"
	"churchhub/pkg/logger"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
	"churchhub/pkg/utils"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeMail struct {
	reminders []ReminderMail
	to        []string
	fail      map[string]bool
}

func (f *fakeMail) SendMailToNotifyUser(to, subject, body, ctaText, ctaURL string) error {
	return nil
}

func (f *fakeMail) SendExpiryReminder(to string, m ReminderMail) error {
	if f.fail[to] {
		return errors.New("smtp unavailable")
	}
	f.to = append(f.to, to)
	f.reminders = append(f.reminders, m)
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     SubscriptionService
	repo    repositories.SubscriptionRepository
	mail    *fakeMail
	metrics *metrics.Metrics
	clock   time.Time
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T, kind entitlement.Kind) *fixture {
	t.Helper()
	f := &fixture{
		db:      openTestDB(t),
		mail:    &fakeMail{fail: map[string]bool{}},
		metrics: metrics.New(prometheus.NewRegistry()),
		clock:   testNow,
	}
	now := func() time.Time { return f.clock }

	cat, err := entitlement.DefaultCatalogs().For(kind)
	require.NoError(t, err)
	f.repo, err = repositories.NewSubscriptionRepository(f.db, kind)
	require.NoError(t, err)

	f.svc, err = NewSubscriptionService(
		entitlement.NewEngine(cat, entitlement.ClockFunc(now), time.UTC),
		f.repo,
		mem.NewIdempotencyKeysWithClock(now),
		f.mail,
		f.metrics,
		logger.NewWithOutput("debug", "json", io.Discard),
		SubscriptionOptions{AppBaseURL: "https://app.example.org/"},
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, plan string, end time.Time, email string) *entitlement.Record {
	t.Helper()
	start := f.clock
	rec, err := f.svc.Create(context.Background(), request_models.CreateSubscriptionRequest{
		OwnerID:       uuid.NewString(),
		Plan:          plan,
		InvoiceAmount: 10000,
		StartDate:     &start,
		EndDate:       &end,
		BillingEmail:  email,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) ops(kind entitlement.Kind, op, result string) float64 {
	return testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues(string(kind), op, result))
}

func TestNewSubscriptionService_KindMismatch(t *testing.T) {
	db := openTestDB(t)
	_, err := NewSubscriptionService(
		entitlement.NewEngine(entitlement.DefaultUserCatalog(), nil, nil),
		repositories.NewChurchSubscriptionRepository(db),
		mem.NewIdempotencyKeys(),
		&fakeMail{},
		metrics.New(prometheus.NewRegistry()),
		logger.NewWithOutput("info", "json", io.Discard),
		SubscriptionOptions{},
	)
	assert.Error(t, err)
}

func TestSubscriptionService_Create(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, request_models.CreateSubscriptionRequest{
		OwnerID:       uuid.NewString(),
		Plan:          "standard",
		InvoiceAmount: 25000,
		Limits:        map[string]int64{"users": 200},
	})
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusTrial, rec.Status)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, int64(25000), rec.BalAmount)
	assert.Equal(t, int64(200), rec.Max[entitlement.LimitUsers])
	assert.Equal(t, int64(3), rec.Max[entitlement.LimitBranches])
	assert.Equal(t, testNow.AddDate(0, 1, 0), rec.EndDate)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = f.svc.Create(ctx, request_models.CreateSubscriptionRequest{OwnerID: uuid.NewString(), Plan: "engage"})
	assert.ErrorIs(t, err, entitlement.ErrValidation)

	_, err = f.svc.Create(ctx, request_models.CreateSubscriptionRequest{OwnerID: "not-a-uuid", Plan: "basic"})
	assert.ErrorIs(t, err, entitlement.ErrValidation)

	assert.Equal(t, float64(1), f.ops(entitlement.KindChurch, "create", "ok"))
	assert.Equal(t, float64(2), f.ops(entitlement.KindChurch, "create", "rejected"))
}

func TestSubscriptionService_GetMissing(t *testing.T) {
	f := newFixture(t, entitlement.KindUser)

	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, utils.ErrSubscriptionNotFound)

	_, err = f.svc.Renew(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, utils.ErrSubscriptionNotFound)
	assert.Equal(t, float64(1), f.ops(entitlement.KindUser, "renew", "rejected"))
}

func TestSubscriptionService_RecordPayment(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()
	rec := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")

	f.clock = testNow.Add(time.Hour)
	got, payment, err := f.svc.RecordPayment(ctx, rec.ID, request_models.RecordPaymentRequest{
		Amount:    4000,
		Reference: "bank transfer 77",
		Metadata:  map[string]any{"channel": "bank"},
	}, PaymentContext{IdempotencyKey: "k-1", RecordedBy: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), got.PaidAmount)
	assert.Equal(t, int64(6000), got.BalAmount)
	assert.False(t, got.IsPaid)
	require.NotNil(t, got.LastPaymentDate)
	assert.True(t, got.LastPaymentDate.Equal(f.clock))

	assert.Equal(t, int64(6000), payment.BalanceAfter)
	assert.Equal(t, f.clock.Unix(), payment.PaidAt)
	assert.Equal(t, "admin-1", payment.RecordedBy)
	assert.JSONEq(t, `{"channel":"bank"}`, string(payment.Metadata))

	// replayed request
	_, _, err = f.svc.RecordPayment(ctx, rec.ID, request_models.RecordPaymentRequest{Amount: 4000},
		PaymentContext{IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, utils.ErrDuplicateRequest)

	// a rejected payment frees its key for a retry
	_, _, err = f.svc.RecordPayment(ctx, rec.ID, request_models.RecordPaymentRequest{Amount: 7000},
		PaymentContext{IdempotencyKey: "k-2"})
	assert.ErrorIs(t, err, entitlement.ErrValidation)
	got, _, err = f.svc.RecordPayment(ctx, rec.ID, request_models.RecordPaymentRequest{Amount: 6000},
		PaymentContext{IdempotencyKey: "k-2"})
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, int64(0), got.BalAmount)

	payments, err := f.svc.ListPayments(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.Equal(t, float64(10000), testutil.ToFloat64(f.metrics.PaymentsMinorTotal.WithLabelValues("church", "basic")))
	assert.Equal(t, float64(2), f.ops(entitlement.KindChurch, "payment", "rejected"))
}

func TestSubscriptionService_PaymentOnCanceled(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()
	rec := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")

	_, err := f.svc.Cancel(ctx, rec.ID, "merged with another parish")
	require.NoError(t, err)

	_, _, err = f.svc.RecordPayment(ctx, rec.ID, request_models.RecordPaymentRequest{Amount: 100}, PaymentContext{})
	assert.ErrorIs(t, err, entitlement.ErrInvalidState)
}

func TestSubscriptionService_CancelTwiceKeepsFirst(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()
	rec := f.create(t, "premium", testNow.AddDate(0, 1, 0), "")

	first, err := f.svc.Cancel(ctx, rec.ID, "budget")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusCanceled, first.Status)
	assert.Equal(t, int64(2), first.Version)

	f.clock = testNow.Add(48 * time.Hour)
	second, err := f.svc.Cancel(ctx, rec.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version, "no write on a repeated cancel")
	assert.Equal(t, "budget", second.CancelReason)
	require.NotNil(t, second.CanceledAt)
	assert.True(t, second.CanceledAt.Equal(testNow))
}

func TestSubscriptionService_RenewReactivates(t *testing.T) {
	f := newFixture(t, entitlement.KindUser)
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	f.clock = end.AddDate(0, -1, 0)
	rec := f.create(t, "engage", end, "")

	_, err := f.svc.Cancel(ctx, rec.ID, "")
	require.NoError(t, err)

	f.clock = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	got, err := f.svc.Renew(ctx, rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, got.Status)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got.EndDate)
	assert.Nil(t, got.CanceledAt)

	_, err = f.svc.Renew(ctx, rec.ID, 0)
	assert.ErrorIs(t, err, entitlement.ErrValidation)
}

func TestSubscriptionService_UpdateAndUsage(t *testing.T) {
	f := newFixture(t, entitlement.KindUser)
	ctx := context.Background()
	rec := f.create(t, "connect", testNow.AddDate(0, 1, 0), "")
	assert.False(t, rec.CanLeadSmallGroup())

	plan := "serve"
	got, err := f.svc.Update(ctx, rec.ID, request_models.UpdateSubscriptionRequest{Plan: &plan})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Max[entitlement.LimitSmallGroupsLead])
	assert.Equal(t, entitlement.Unlimited, got.Max[entitlement.LimitEventsManage])
	assert.True(t, got.HasFeature("volunteer_tools"))

	got, err = f.svc.UpdateUsage(ctx, rec.ID, entitlement.LimitSmallGroupsLead, 6)
	require.NoError(t, err)
	assert.True(t, got.IsOverLimit(entitlement.LimitSmallGroupsLead))
	assert.False(t, got.CanLeadSmallGroup())

	_, err = f.svc.UpdateUsage(ctx, rec.ID, entitlement.LimitMembers, 1)
	assert.ErrorIs(t, err, entitlement.ErrValidation)

	bad := "gold"
	_, err = f.svc.Update(ctx, rec.ID, request_models.UpdateSubscriptionRequest{Plan: &bad})
	assert.ErrorIs(t, err, entitlement.ErrValidation)
}

func TestSubscriptionService_Refresh(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()
	rec := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")
	active, err := f.svc.Renew(ctx, rec.ID, 1)
	require.NoError(t, err)

	same, err := f.svc.Refresh(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, active.Version, same.Version, "nothing derived changed, nothing written")

	f.clock = active.EndDate.Add(time.Second)
	expired, err := f.svc.Refresh(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusExpired, expired.Status)
	assert.Equal(t, active.Version+1, expired.Version)
}

func TestSubscriptionService_List(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()

	soon := f.create(t, "basic", testNow.Add(3*24*time.Hour), "")
	later := f.create(t, "premium", testNow.AddDate(0, 2, 0), "")
	active, err := f.svc.Renew(ctx, later.ID, 1)
	require.NoError(t, err)
	canceled := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")
	_, err = f.svc.Cancel(ctx, canceled.ID, "")
	require.NoError(t, err)

	ids := func(recs []*entitlement.Record, err error) []uuid.UUID {
		require.NoError(t, err)
		out := []uuid.UUID{}
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Len(t, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{})), 3)
	assert.Equal(t, []uuid.UUID{active.ID}, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "active"})))
	assert.Equal(t, []uuid.UUID{soon.ID}, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "near_expiry"})))
	assert.Empty(t, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "near_expiry", Days: 2})))
	assert.Equal(t, []uuid.UUID{canceled.ID}, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "canceled"})))
	assert.Empty(t, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "active", Plan: "basic"})))
	assert.Equal(t, []uuid.UUID{soon.ID}, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{OwnerID: soon.OwnerID.String()})))

	f.clock = active.EndDate.Add(time.Hour)
	assert.Equal(t, []uuid.UUID{active.ID}, ids(f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "expired"})))

	_, err = f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "paused"})
	assert.ErrorIs(t, err, entitlement.ErrValidation)
	_, err = f.svc.List(ctx, request_models.ListSubscriptionsQuery{PageSize: 101})
	assert.ErrorIs(t, err, utils.ErrInvalidPageSize)
	_, err = f.svc.List(ctx, request_models.ListSubscriptionsQuery{Page: -1})
	assert.ErrorIs(t, err, utils.ErrInvalidPage)

	_, err = f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "near_expiry", Days: 200000})
	assert.ErrorIs(t, err, entitlement.ErrValidation)
	_, err = f.svc.List(ctx, request_models.ListSubscriptionsQuery{Status: "near_expiry", Days: maxNearExpiryDays})
	assert.NoError(t, err)
}

func TestSubscriptionService_SweepExpired(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()

	due := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")
	_, err := f.svc.Renew(ctx, due.ID, 1)
	require.NoError(t, err)
	trial := f.create(t, "basic", testNow.AddDate(0, 1, 0), "")

	f.clock = testNow.AddDate(0, 3, 0)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusExpired, got.Status)

	got, err = f.svc.Get(ctx, trial.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusTrial, got.Status, "trials never expire on their own")

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ExpirationsTotal.WithLabelValues("church")))
}

func TestSubscriptionService_SendReminders(t *testing.T) {
	f := newFixture(t, entitlement.KindChurch)
	ctx := context.Background()

	ok := f.create(t, "standard", testNow.Add(2*24*time.Hour+time.Hour), "treasurer@grace.org")
	f.create(t, "basic", testNow.Add(3*24*time.Hour), "")
	f.create(t, "basic", testNow.Add(4*24*time.Hour), "office@down.org")
	f.create(t, "basic", testNow.AddDate(0, 1, 0), "far@grace.org")
	f.mail.fail["office@down.org"] = true

	sent, err := f.svc.SendReminders(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.mail.reminders, 1)
	assert.Equal(t, []string{"treasurer@grace.org"}, f.mail.to)
	m := f.mail.reminders[0]
	assert.Equal(t, 3, m.DaysRemaining)
	assert.Equal(t, "standard", m.Plan)
	assert.Equal(t, int64(10000), m.Balance)
	assert.Equal(t, "https://app.example.org/billing/church-subscriptions/"+ok.ID.String(), m.ManageURL)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RemindersTotal.WithLabelValues("church", "sent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RemindersTotal.WithLabelValues("church", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RemindersTotal.WithLabelValues("church", "failed")))
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, "ok", resultOf(nil))
	assert.Equal(t, "conflict", resultOf(persistErr(repositories.ErrVersionConflict)))
	assert.Equal(t, "rejected", resultOf(&entitlement.InvalidStateError{Status: entitlement.StatusCanceled}))
	assert.Equal(t, "error", resultOf(persistErr(errors.New("connection reset"))))
	assert.ErrorIs(t, persistErr(errors.New("connection reset")), utils.ErrDatabaseError)
}
