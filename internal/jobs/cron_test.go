package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchhub/internal/entitlement"
	"churchhub/internal/services"
	"churchhub/pkg/logger"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
)

// stubService answers the job entry points only.
type stubService struct {
	services.SubscriptionService
	kind     entitlement.Kind
	expired  int
	sent     int
	err      error
	sweeps   int
	reminded int
}

func (s *stubService) Kind() entitlement.Kind { return s.kind }

func (s *stubService) SweepExpired(ctx context.Context) (int, error) {
	s.sweeps++
	return s.expired, s.err
}

func (s *stubService) SendReminders(ctx context.Context) (int, error) {
	s.reminded++
	return s.sent, s.err
}

func newManager(t *testing.T, church, user *stubService, keys mem.IdempotencyStore, schedules Schedules) (*CronManager, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	cm := NewCronManager(
		services.SubscriptionServices{Church: church, User: user},
		keys,
		m,
		logger.NewWithOutput("debug", "text", io.Discard),
		schedules,
		nil,
	)
	return cm, m
}

func TestCronManager_RunExpirySweep(t *testing.T) {
	church := &stubService{kind: entitlement.KindChurch, expired: 2, err: errors.New("db down")}
	user := &stubService{kind: entitlement.KindUser, expired: 3}
	cm, m := newManager(t, church, user, mem.NewIdempotencyKeys(), Schedules{})

	n, err := cm.RunExpirySweep(context.Background())
	assert.EqualError(t, err, "db down")
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, user.sweeps, "a failing kind does not stop the others")
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestCronManager_RunReminders(t *testing.T) {
	church := &stubService{kind: entitlement.KindChurch, sent: 4}
	user := &stubService{kind: entitlement.KindUser, sent: 1}
	cm, _ := newManager(t, church, user, mem.NewIdempotencyKeys(), Schedules{})

	n, err := cm.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, church.reminded)
	assert.Equal(t, 1, user.reminded)
}

func TestCronManager_RunIdempotencyPurge(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	keys := mem.NewIdempotencyKeysWithClock(func() time.Time { return now })
	keys.Reserve("church:a:1", time.Hour)
	keys.Reserve("church:a:2", 3*time.Hour)

	cm, _ := newManager(t, &stubService{kind: entitlement.KindChurch}, &stubService{kind: entitlement.KindUser}, keys, Schedules{})

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, cm.RunIdempotencyPurge())
	assert.False(t, keys.Reserve("church:a:2", time.Hour), "unexpired key is kept")
}

func TestCronManager_SetupJobs(t *testing.T) {
	church := &stubService{kind: entitlement.KindChurch}
	user := &stubService{kind: entitlement.KindUser}

	cm, _ := newManager(t, church, user, mem.NewIdempotencyKeys(), Schedules{
		ExpirySweep: "*/15 * * * *",
		Reminders:   "0 8 * * *",
	})
	require.NoError(t, cm.SetupJobs())
	assert.Len(t, cm.Entries(), 3)

	cm.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cm.Stop(ctx))

	bad, _ := newManager(t, church, user, mem.NewIdempotencyKeys(), Schedules{
		ExpirySweep: "every now and then",
		Reminders:   "0 8 * * *",
	})
	assert.Error(t, bad.SetupJobs())
}
