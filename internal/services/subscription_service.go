package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"churchhub/internal/entitlement"
	"churchhub/internal/models/db_models"
	"churchhub/internal/models/request_models"
	"churchhub/internal/repositories"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
	"churchhub/pkg/utils"
)

const (
	maxPageSize     = 100
	defaultPageSize = 20

	// upper bound for the near_expiry window; larger values overflow time.Duration
	maxNearExpiryDays = 3650
)

type SubscriptionService interface {
	Kind() entitlement.Kind
	Catalog() *entitlement.Catalog
	Now() time.Time
	Location() *time.Location

	Create(ctx context.Context, req request_models.CreateSubscriptionRequest) (*entitlement.Record, error)
	Get(ctx context.Context, id uuid.UUID) (*entitlement.Record, error)
	List(ctx context.Context, q request_models.ListSubscriptionsQuery) ([]*entitlement.Record, error)
	Update(ctx context.Context, id uuid.UUID, req request_models.UpdateSubscriptionRequest) (*entitlement.Record, error)
	RecordPayment(ctx context.Context, id uuid.UUID, req request_models.RecordPaymentRequest, pc PaymentContext) (*entitlement.Record, *db_models.SubscriptionPayment, error)
	ListPayments(ctx context.Context, id uuid.UUID) ([]db_models.SubscriptionPayment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*entitlement.Record, error)
	Renew(ctx context.Context, id uuid.UUID, months int) (*entitlement.Record, error)
	UpdateUsage(ctx context.Context, id uuid.UUID, key entitlement.LimitKey, count int64) (*entitlement.Record, error)
	Refresh(ctx context.Context, id uuid.UUID) (*entitlement.Record, error)

	// scheduled jobs
	SweepExpired(ctx context.Context) (int, error)
	SendReminders(ctx context.Context) (int, error)
}

// SubscriptionServices holds one service per subscription kind.
type SubscriptionServices struct {
	Church SubscriptionService
	User   SubscriptionService
}

func (s SubscriptionServices) All() []SubscriptionService {
	return []SubscriptionService{s.Church, s.User}
}

// PaymentContext carries request metadata that is not part of the payment
// body.
type PaymentContext struct {
	IdempotencyKey string
	RecordedBy     string
}

type SubscriptionOptions struct {
	NearExpiryDays int
	IdempotencyTTL time.Duration
	AppBaseURL     string
}

type subscriptionService struct {
	engine  *entitlement.Engine
	repo    repositories.SubscriptionRepository
	keys    mem.IdempotencyStore
	mail    IMailService
	metrics *metrics.Metrics
	log     *logrus.Logger
	opts    SubscriptionOptions
}

func NewSubscriptionService(
	engine *entitlement.Engine,
	repo repositories.SubscriptionRepository,
	keys mem.IdempotencyStore,
	mail IMailService,
	m *metrics.Metrics,
	log *logrus.Logger,
	opts SubscriptionOptions,
) (SubscriptionService, error) {
	if engine.Kind() != repo.Kind() {
		return nil, fmt.Errorf("engine kind %s does not match repository kind %s", engine.Kind(), repo.Kind())
	}
	if opts.NearExpiryDays <= 0 {
		opts.NearExpiryDays = entitlement.NearExpiryDays
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &subscriptionService{
		engine:  engine,
		repo:    repo,
		keys:    keys,
		mail:    mail,
		metrics: m,
		log:     log,
		opts:    opts,
	}, nil
}

func (s *subscriptionService) Kind() entitlement.Kind { return s.engine.Kind() }

func (s *subscriptionService) Catalog() *entitlement.Catalog { return s.engine.Catalog() }

func (s *subscriptionService) Now() time.Time { return s.engine.Now() }

func (s *subscriptionService) Location() *time.Location { return s.engine.Location() }

func (s *subscriptionService) Create(ctx context.Context, req request_models.CreateSubscriptionRequest) (*entitlement.Record, error) {
	const op = "create"
	owner, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return nil, s.done(op, nil, &entitlement.ValidationError{Field: "owner_id", Message: "must be a uuid"})
	}

	p := entitlement.NewParams{
		OwnerID:       owner,
		Plan:          entitlement.Plan(req.Plan),
		InvoiceAmount: req.InvoiceAmount,
		IsAutoRenew:   req.IsAutoRenew,
		BillingEmail:  req.BillingEmail,
		Max:           toLimits(req.Limits),
		Features:      req.Features,
	}
	if req.StartDate != nil {
		p.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		p.EndDate = *req.EndDate
	}

	rec, err := s.engine.New(p)
	if err != nil {
		return nil, s.done(op, nil, err)
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, s.done(op, rec, persistErr(err))
	}
	return rec, s.done(op, rec, nil)
}

func (s *subscriptionService) Get(ctx context.Context, id uuid.UUID) (*entitlement.Record, error) {
	return s.load(ctx, id)
}

func (s *subscriptionService) List(ctx context.Context, q request_models.ListSubscriptionsQuery) ([]*entitlement.Record, error) {
	if q.Page < 0 {
		return nil, utils.ErrInvalidPage
	}
	if q.PageSize < 0 || q.PageSize > maxPageSize {
		return nil, utils.ErrInvalidPageSize
	}
	if q.Days < 0 {
		return nil, &entitlement.ValidationError{Field: "days", Message: "must not be negative"}
	}
	if q.Days > maxNearExpiryDays {
		return nil, &entitlement.ValidationError{Field: "days", Message: fmt.Sprintf("must be at most %d", maxNearExpiryDays)}
	}
	f := repositories.ListFilter{
		Plan:     entitlement.Plan(q.Plan),
		Page:     max(q.Page, 1),
		PageSize: q.PageSize,
	}
	if f.PageSize == 0 {
		f.PageSize = defaultPageSize
	}
	if q.OwnerID != "" {
		owner, err := uuid.Parse(q.OwnerID)
		if err != nil {
			return nil, &entitlement.ValidationError{Field: "owner_id", Message: "must be a uuid"}
		}
		f.OwnerID = &owner
	}

	now := s.engine.Now()
	var (
		recs []*entitlement.Record
		err  error
	)
	switch q.Status {
	case "active":
		recs, err = s.repo.FindActive(ctx, now)
	case "expired":
		recs, err = s.repo.FindExpired(ctx, now)
	case "near_expiry":
		days := q.Days
		if days == 0 {
			days = s.opts.NearExpiryDays
		}
		recs, err = s.repo.FindNearExpiry(ctx, now, days)
	default:
		if q.Status != "" {
			st := entitlement.Status(q.Status)
			if !st.Valid() {
				return nil, &entitlement.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", q.Status)}
			}
			f.Status = st
		}
		recs, err = s.repo.List(ctx, f)
		if err != nil {
			return nil, persistErr(err)
		}
		return recs, nil
	}
	if err != nil {
		return nil, persistErr(err)
	}
	return paginate(filterRecords(recs, f), f.Page, f.PageSize), nil
}

func (s *subscriptionService) Update(ctx context.Context, id uuid.UUID, req request_models.UpdateSubscriptionRequest) (*entitlement.Record, error) {
	p := entitlement.UpdateParams{
		InvoiceAmount: req.InvoiceAmount,
		IsAutoRenew:   req.IsAutoRenew,
		EndDate:       req.EndDate,
		BillingEmail:  req.BillingEmail,
		Max:           toLimits(req.Limits),
		Features:      req.Features,
	}
	if req.Plan != nil {
		plan := entitlement.Plan(*req.Plan)
		p.Plan = &plan
	}
	return s.mutate(ctx, id, "update", func(rec *entitlement.Record) (bool, error) {
		return true, s.engine.Update(rec, p)
	})
}

func (s *subscriptionService) RecordPayment(ctx context.Context, id uuid.UUID, req request_models.RecordPaymentRequest, pc PaymentContext) (rec *entitlement.Record, payment *db_models.SubscriptionPayment, err error) {
	const op = "payment"
	if pc.IdempotencyKey != "" {
		key := fmt.Sprintf("%s:%s:%s", s.Kind(), id, pc.IdempotencyKey)
		if !s.keys.Reserve(key, s.opts.IdempotencyTTL) {
			return nil, nil, s.done(op, nil, utils.ErrDuplicateRequest)
		}
		defer func() {
			if err != nil {
				s.keys.Release(key)
			}
		}()
	}

	rec, err = s.load(ctx, id)
	if err != nil {
		return nil, nil, s.done(op, nil, err)
	}
	if err = s.engine.RecordPayment(rec, req.Amount); err != nil {
		return nil, nil, s.done(op, rec, err)
	}

	payment = &db_models.SubscriptionPayment{
		SubscriptionID: rec.ID,
		Kind:           string(rec.Kind),
		OwnerID:        rec.OwnerID,
		AmountMinor:    req.Amount,
		BalanceAfter:   rec.BalAmount,
		PaidAt:         s.engine.Now().Unix(),
		Reference:      req.Reference,
		RecordedBy:     pc.RecordedBy,
	}
	if len(req.Metadata) > 0 {
		raw, mErr := json.Marshal(req.Metadata)
		if mErr != nil {
			err = &entitlement.ValidationError{Field: "metadata", Message: "must be a JSON object"}
			return nil, nil, s.done(op, rec, err)
		}
		payment.Metadata = datatypes.JSON(raw)
	}

	if err = s.repo.UpdateWithPayment(ctx, rec, payment); err != nil {
		err = persistErr(err)
		return nil, nil, s.done(op, rec, err)
	}
	s.metrics.RecordPayment(string(rec.Kind), string(rec.Plan), req.Amount)
	return rec, payment, s.done(op, rec, nil)
}

func (s *subscriptionService) ListPayments(ctx context.Context, id uuid.UUID) ([]db_models.SubscriptionPayment, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, persistErr(err)
	}
	return payments, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*entitlement.Record, error) {
	return s.mutate(ctx, id, "cancel", func(rec *entitlement.Record) (bool, error) {
		if rec.Status == entitlement.StatusCanceled {
			return false, nil
		}
		s.engine.Cancel(rec, reason)
		return true, nil
	})
}

func (s *subscriptionService) Renew(ctx context.Context, id uuid.UUID, months int) (*entitlement.Record, error) {
	return s.mutate(ctx, id, "renew", func(rec *entitlement.Record) (bool, error) {
		return true, s.engine.Renew(rec, months)
	})
}

func (s *subscriptionService) UpdateUsage(ctx context.Context, id uuid.UUID, key entitlement.LimitKey, count int64) (*entitlement.Record, error) {
	return s.mutate(ctx, id, "usage", func(rec *entitlement.Record) (bool, error) {
		return true, s.engine.UpdateUsageCount(rec, key, count)
	})
}

func (s *subscriptionService) Refresh(ctx context.Context, id uuid.UUID) (*entitlement.Record, error) {
	return s.mutate(ctx, id, "refresh", func(rec *entitlement.Record) (bool, error) {
		before := rec.Clone()
		s.engine.Refresh(rec)
		return !sameDerived(before, rec), nil
	})
}

// SweepExpired persists the expiry of active subscriptions whose period has
// ended. Rows changed concurrently are left for the next run.
func (s *subscriptionService) SweepExpired(ctx context.Context) (int, error) {
	now := s.engine.Now()
	due, err := s.repo.FindActiveDue(ctx, now)
	if err != nil {
		return 0, persistErr(err)
	}

	expired := 0
	for _, rec := range due {
		s.engine.Refresh(rec)
		if rec.Status != entitlement.StatusExpired {
			continue
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			entry := s.log.WithFields(logrus.Fields{"kind": s.Kind(), "subscription_id": rec.ID})
			if errors.Is(err, repositories.ErrVersionConflict) {
				entry.Debug("expiry sweep skipped a concurrently updated subscription")
				continue
			}
			entry.WithError(err).Error("expiry sweep failed")
			s.metrics.RecordExpirations(string(s.Kind()), expired)
			return expired, persistErr(err)
		}
		expired++
	}
	s.metrics.RecordExpirations(string(s.Kind()), expired)
	if expired > 0 {
		s.log.WithFields(logrus.Fields{"kind": s.Kind(), "expired": expired}).Info("expired subscriptions")
	}
	return expired, nil
}

// SendReminders mails every trial or active subscription ending within the
// near expiry window. Subscriptions without a billing e-mail are skipped.
func (s *subscriptionService) SendReminders(ctx context.Context) (int, error) {
	now := s.engine.Now()
	recs, err := s.repo.FindNearExpiry(ctx, now, s.opts.NearExpiryDays)
	if err != nil {
		return 0, persistErr(err)
	}

	kind := string(s.Kind())
	sent := 0
	var errs []error
	for _, rec := range recs {
		if rec.BillingEmail == "" {
			s.metrics.RecordReminder(kind, "skipped")
			continue
		}
		err := s.mail.SendExpiryReminder(rec.BillingEmail, ReminderMail{
			Kind:          kind,
			Plan:          string(rec.Plan),
			EndDate:       utils.FormatDisplayDate(rec.EndDate, s.engine.Location()),
			DaysRemaining: rec.DaysRemaining(now),
			Balance:       rec.BalAmount,
			ManageURL:     fmt.Sprintf("%s/billing/%s-subscriptions/%s", strings.TrimRight(s.opts.AppBaseURL, "/"), kind, rec.ID),
		})
		if err != nil {
			s.metrics.RecordReminder(kind, "failed")
			s.log.WithFields(logrus.Fields{"kind": kind, "subscription_id": rec.ID}).WithError(err).Warn("reminder not sent")
			errs = append(errs, fmt.Errorf("subscription %s: %w", rec.ID, err))
			continue
		}
		s.metrics.RecordReminder(kind, "sent")
		sent++
	}
	return sent, errors.Join(errs...)
}

// mutate loads the record, applies fn and stores the result. fn reports
// whether anything changed; unchanged records are returned without a write.
func (s *subscriptionService) mutate(ctx context.Context, id uuid.UUID, op string, fn func(rec *entitlement.Record) (bool, error)) (*entitlement.Record, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, s.done(op, nil, err)
	}
	changed, err := fn(rec)
	if err != nil {
		return nil, s.done(op, rec, err)
	}
	if !changed {
		return rec, s.done(op, rec, nil)
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, s.done(op, rec, persistErr(err))
	}
	return rec, s.done(op, rec, nil)
}

func (s *subscriptionService) load(ctx context.Context, id uuid.UUID) (*entitlement.Record, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, persistErr(err)
	}
	if rec == nil {
		return nil, utils.ErrSubscriptionNotFound
	}
	return rec, nil
}

// done counts and logs the outcome of op and hands err back.
func (s *subscriptionService) done(op string, rec *entitlement.Record, err error) error {
	result := resultOf(err)
	s.metrics.RecordOperation(string(s.Kind()), op, result)

	entry := s.log.WithFields(logrus.Fields{"kind": s.Kind(), "operation": op, "result": result})
	if rec != nil {
		entry = entry.WithFields(logrus.Fields{"subscription_id": rec.ID, "status": rec.Status})
	}
	switch result {
	case "ok":
		entry.Debug("subscription operation")
	case "error":
		entry.WithError(err).Error("subscription operation failed")
	default:
		entry.WithError(err).Info("subscription operation rejected")
	}
	return err
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, utils.ErrConcurrentUpdate):
		return "conflict"
	case errors.Is(err, entitlement.ErrValidation),
		errors.Is(err, entitlement.ErrInvalidState),
		errors.Is(err, utils.ErrSubscriptionNotFound),
		errors.Is(err, utils.ErrDuplicateRequest):
		return "rejected"
	}
	return "error"
}

func persistErr(err error) error {
	if errors.Is(err, repositories.ErrVersionConflict) {
		return utils.ErrConcurrentUpdate
	}
	return fmt.Errorf("%w: %w", utils.ErrDatabaseError, err)
}

func toLimits(in map[string]int64) map[entitlement.LimitKey]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[entitlement.LimitKey]int64, len(in))
	for k, v := range in {
		out[entitlement.LimitKey(k)] = v
	}
	return out
}

func filterRecords(recs []*entitlement.Record, f repositories.ListFilter) []*entitlement.Record {
	if f.OwnerID == nil && f.Plan == "" {
		return recs
	}
	out := recs[:0:0]
	for _, rec := range recs {
		if f.OwnerID != nil && rec.OwnerID != *f.OwnerID {
			continue
		}
		if f.Plan != "" && rec.Plan != f.Plan {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func paginate(recs []*entitlement.Record, page, size int) []*entitlement.Record {
	start := (page - 1) * size
	if start >= len(recs) {
		return []*entitlement.Record{}
	}
	return recs[start:min(start+size, len(recs))]
}

// sameDerived reports whether a calculator pass left every derived field
// as it was.
func sameDerived(a, b *entitlement.Record) bool {
	if a.Status != b.Status || a.BalAmount != b.BalAmount || a.IsPaid != b.IsPaid {
		return false
	}
	if !sameTime(a.NextBillingDate, b.NextBillingDate) || !sameTime(a.CanceledAt, b.CanceledAt) {
		return false
	}
	if len(a.Max) != len(b.Max) || len(a.Current) != len(b.Current) || len(a.Features) != len(b.Features) {
		return false
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
