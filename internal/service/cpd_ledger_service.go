package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/observability"
	"github.com/noah-isme/naa-portal-api/internal/repository"
)

var (
	// ErrLedgerIntegrity indicates an adjustment would leave a negative balance or
	// was applied to a record in the wrong state. Totals are never clamped.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
	// ErrLedgerConflict indicates another writer adjusted the same balance first.
	ErrLedgerConflict = errors.New("ledger balance changed concurrently")
)

// CPDLedgerService maintains per-member, per-period CPD totals.
type CPDLedgerService interface {
	// RecordPoints credits a record that just entered Verified. It runs on store so the
	// credit commits or rolls back with the transition that caused it.
	RecordPoints(ctx context.Context, store repository.CPDStore, record models.AccrualRecord) (decimal.Decimal, error)
	// WithdrawPoints debits a record that just left Verified.
	WithdrawPoints(ctx context.Context, store repository.CPDStore, record models.AccrualRecord) (decimal.Decimal, error)
	CurrentTotal(ctx context.Context, memberID, periodID uint) (decimal.Decimal, error)
	CurrentPeriodTotal(ctx context.Context, memberID uint) (decimal.Decimal, error)
	ProgressRatio(ctx context.Context, memberID, periodID uint) (decimal.Decimal, error)
	Progress(ctx context.Context, memberID, periodID uint) (dto.CPDProgressResponse, error)
	CurrentPeriodProgress(ctx context.Context, memberID uint) (dto.CPDProgressResponse, error)
	Reconcile(ctx context.Context, memberID, periodID uint, actor ActivityActor) (dto.LedgerReconcileResponse, error)
	Invalidate(ctx context.Context, memberID, periodID uint)
}

type cpdLedgerService struct {
	store    repository.CPDStore
	cache    *redis.Client
	cacheTTL time.Duration
	activity ActivityRecorder
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewCPDLedgerService constructs the ledger service. cache may be nil.
func NewCPDLedgerService(store repository.CPDStore, cache *redis.Client, ttl time.Duration, activity ActivityRecorder, logger zerolog.Logger) CPDLedgerService {
	return &cpdLedgerService{
		store:    store,
		cache:    cache,
		cacheTTL: ttl,
		activity: activity,
		logger:   logger.With().Str("component", "cpd_ledger_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/naa-portal-api/internal/service/cpd_ledger"),
		now:      time.Now,
	}
}

func (s *cpdLedgerService) RecordPoints(ctx context.Context, store repository.CPDStore, record models.AccrualRecord) (decimal.Decimal, error) {
	if !record.Status.Counts() {
		return decimal.Zero, fmt.Errorf("%w: record %d is %s, not verified", ErrLedgerIntegrity, record.ID, record.Status)
	}
	return s.adjust(ctx, store, record, record.ClaimedPoints, "credit")
}

func (s *cpdLedgerService) WithdrawPoints(ctx context.Context, store repository.CPDStore, record models.AccrualRecord) (decimal.Decimal, error) {
	if record.Status.Counts() {
		return decimal.Zero, fmt.Errorf("%w: record %d is still verified", ErrLedgerIntegrity, record.ID)
	}
	return s.adjust(ctx, store, record, record.ClaimedPoints.Neg(), "debit")
}

func (s *cpdLedgerService) adjust(ctx context.Context, store repository.CPDStore, record models.AccrualRecord, delta decimal.Decimal, direction string) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.adjust", trace.WithAttributes(
		attribute.Int64("ledger.member_id", int64(record.MemberID)),
		attribute.Int64("ledger.period_id", int64(record.PeriodID)),
		attribute.Int64("ledger.record_id", int64(record.ID)),
		attribute.String("ledger.direction", direction),
	))
	defer span.End()

	balance, err := store.GetBalance(ctx, record.MemberID, record.PeriodID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "balance_lookup_failed")
		return decimal.Zero, err
	}

	next := balance.Points.Add(delta)
	if next.IsNegative() {
		err := fmt.Errorf("%w: balance of member %d in period %d would become %s", ErrLedgerIntegrity, record.MemberID, record.PeriodID, next)
		s.logger.Error().Err(err).Uint("record_id", record.ID).Msg("refusing negative ledger balance")
		span.RecordError(err)
		span.SetStatus(codes.Error, "negative_balance")
		return decimal.Zero, err
	}

	if err := store.SaveBalance(ctx, &balance, next); err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrBalanceConflict) {
			span.SetStatus(codes.Error, "balance_conflict")
			return decimal.Zero, ErrLedgerConflict
		}
		span.SetStatus(codes.Error, "balance_save_failed")
		return decimal.Zero, err
	}

	observability.LedgerAdjustments().WithLabelValues(direction).Inc()
	span.SetAttributes(attribute.String("ledger.total", next.String()))
	return next, nil
}

func (s *cpdLedgerService) CurrentTotal(ctx context.Context, memberID, periodID uint) (decimal.Decimal, error) {
	balance, err := s.store.GetBalance(ctx, memberID, periodID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Points, nil
}

func (s *cpdLedgerService) CurrentPeriodTotal(ctx context.Context, memberID uint) (decimal.Decimal, error) {
	period, err := periodAt(ctx, s.store, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoOpenPeriod) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return s.CurrentTotal(ctx, memberID, period.ID)
}

func (s *cpdLedgerService) ProgressRatio(ctx context.Context, memberID, periodID uint) (decimal.Decimal, error) {
	progress, err := s.Progress(ctx, memberID, periodID)
	if err != nil {
		return decimal.Zero, err
	}
	return progress.Ratio, nil
}

func (s *cpdLedgerService) Progress(ctx context.Context, memberID, periodID uint) (dto.CPDProgressResponse, error) {
	cacheKey := progressCacheKey(memberID, periodID)
	ctx, span := s.tracer.Start(ctx, "ledger.progress", trace.WithAttributes(attribute.String("ledger.cache_key", cacheKey)))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.CPDProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				observability.ProgressCache().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("ledger.cache_hit", true))
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
			span.RecordError(err)
		}
		observability.ProgressCache().WithLabelValues("miss").Inc()
	}

	period, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		span.RecordError(err)
		if isNotFound(err) {
			return dto.CPDProgressResponse{}, ErrPeriodNotFound
		}
		span.SetStatus(codes.Error, "period_lookup_failed")
		return dto.CPDProgressResponse{}, err
	}

	total, err := s.CurrentTotal(ctx, memberID, periodID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "balance_lookup_failed")
		return dto.CPDProgressResponse{}, err
	}

	response := buildProgress(memberID, period, total)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
				span.RecordError(err)
			}
		}
	}

	return response, nil
}

func (s *cpdLedgerService) CurrentPeriodProgress(ctx context.Context, memberID uint) (dto.CPDProgressResponse, error) {
	period, err := periodAt(ctx, s.store, s.now().UTC())
	if err != nil {
		return dto.CPDProgressResponse{}, err
	}
	return s.Progress(ctx, memberID, period.ID)
}

// Reconcile recomputes the total from the currently verified records of the period and
// stores it when the running balance has drifted.
func (s *cpdLedgerService) Reconcile(ctx context.Context, memberID, periodID uint, actor ActivityActor) (dto.LedgerReconcileResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.reconcile", trace.WithAttributes(
		attribute.Int64("ledger.member_id", int64(memberID)),
		attribute.Int64("ledger.period_id", int64(periodID)),
	))
	defer span.End()

	var result dto.LedgerReconcileResponse
	err := s.store.Transaction(ctx, func(store repository.CPDStore) error {
		if _, err := store.GetPeriod(ctx, periodID); err != nil {
			if isNotFound(err) {
				return ErrPeriodNotFound
			}
			return err
		}

		balance, err := store.GetBalance(ctx, memberID, periodID)
		if err != nil {
			return err
		}

		verified, err := store.ListVerified(ctx, memberID, periodID)
		if err != nil {
			return err
		}

		computed := sumClaimed(verified)
		result = dto.LedgerReconcileResponse{
			MemberID: memberID,
			PeriodID: periodID,
			Stored:   balance.Points,
			Computed: computed,
			Drift:    balance.Points.Sub(computed),
		}

		if result.Drift.IsZero() {
			return nil
		}

		if err := store.SaveBalance(ctx, &balance, computed); err != nil {
			if errors.Is(err, repository.ErrBalanceConflict) {
				return ErrLedgerConflict
			}
			return err
		}
		result.Corrected = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile_failed")
		return dto.LedgerReconcileResponse{}, err
	}

	if result.Corrected {
		s.logger.Warn().
			Uint("member_id", memberID).
			Uint("period_id", periodID).
			Str("stored", result.Stored.String()).
			Str("computed", result.Computed.String()).
			Msg("ledger drift corrected")
		s.Invalidate(ctx, memberID, periodID)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "ledger.reconciled",
		EntityType: "member",
		EntityID:   uintPtr(memberID),
		Metadata: map[string]interface{}{
			"period_id": periodID,
			"stored":    result.Stored.String(),
			"computed":  result.Computed.String(),
			"corrected": result.Corrected,
		},
	})

	return result, nil
}

// Invalidate drops the cached progress of a member's period. Call after commit.
func (s *cpdLedgerService) Invalidate(ctx context.Context, memberID, periodID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, progressCacheKey(memberID, periodID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("member_id", memberID).Uint("period_id", periodID).Msg("failed to invalidate progress cache")
	}
}

func buildProgress(memberID uint, period models.AccrualPeriod, total decimal.Decimal) dto.CPDProgressResponse {
	ratio := decimal.Zero
	if period.TargetPoints.IsPositive() {
		ratio = total.Div(period.TargetPoints)
	}

	return dto.CPDProgressResponse{
		MemberID:     memberID,
		PeriodID:     period.ID,
		PeriodName:   period.Name,
		TotalPoints:  total,
		TargetPoints: period.TargetPoints,
		Ratio:        ratio,
		Completed:    total.GreaterThanOrEqual(period.TargetPoints),
	}
}

func sumClaimed(records []models.AccrualRecord) decimal.Decimal {
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.ClaimedPoints)
	}
	return total
}

func progressCacheKey(memberID, periodID uint) string {
	return fmt.Sprintf("cpd:progress:%d:%d", memberID, periodID)
}
