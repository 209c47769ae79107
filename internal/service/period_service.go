package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/repository"
)

var (
	// ErrPeriodOverlap indicates a new period would share time with an existing one.
	ErrPeriodOverlap = errors.New("accrual period overlaps an existing period")
	// ErrNoOpenPeriod indicates no accrual period covers the requested instant.
	ErrNoOpenPeriod = errors.New("no accrual period covers the given date")
	// ErrPeriodNotFound indicates the accrual period does not exist.
	ErrPeriodNotFound = errors.New("accrual period not found")
	// ErrInvalidTarget indicates a non-positive target points value.
	ErrInvalidTarget = errors.New("target points must be positive")
)

// PeriodService administers accrual periods.
type PeriodService interface {
	Create(ctx context.Context, payload dto.PeriodCreateRequest, actor ActivityActor) (dto.PeriodResponse, error)
	List(ctx context.Context) ([]dto.PeriodResponse, error)
	Get(ctx context.Context, id uint) (models.AccrualPeriod, error)
	PeriodAt(ctx context.Context, at time.Time) (models.AccrualPeriod, error)
}

type periodService struct {
	store     repository.CPDStore
	validator *validator.Validate
	policy    config.CPDPolicy
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewPeriodService constructs the period service.
func NewPeriodService(store repository.CPDStore, validate *validator.Validate, policy config.CPDPolicy, activity ActivityRecorder, logger zerolog.Logger) PeriodService {
	return &periodService{
		store:     store,
		validator: validate,
		policy:    policy,
		activity:  activity,
		logger:    logger.With().Str("component", "period_service").Logger(),
	}
}

func (s *periodService) Create(ctx context.Context, payload dto.PeriodCreateRequest, actor ActivityActor) (dto.PeriodResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/naa-portal-api/internal/service/period")
	ctx, span := tracer.Start(ctx, "periods.create")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.PeriodResponse{}, err
	}

	target := s.policy.DefaultTargetPoints
	if payload.TargetPoints != nil {
		target = *payload.TargetPoints
	}
	if !target.IsPositive() {
		span.SetStatus(codes.Error, "invalid_target")
		return dto.PeriodResponse{}, ErrInvalidTarget
	}

	period := models.AccrualPeriod{
		Name:         payload.Name,
		StartsOn:     payload.StartsOn.UTC(),
		EndsOn:       payload.EndsOn.UTC(),
		TargetPoints: target,
	}

	err := s.store.Transaction(ctx, func(store repository.CPDStore) error {
		if err := store.LockPeriods(ctx); err != nil {
			return err
		}
		existing, err := store.ListPeriods(ctx)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if period.Overlaps(other) {
				return ErrPeriodOverlap
			}
		}
		return store.CreatePeriod(ctx, &period)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "period_create_failed")
		return dto.PeriodResponse{}, err
	}

	span.SetAttributes(attribute.Int64("period.id", int64(period.ID)))
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "period.created",
		EntityType: "accrual_period",
		EntityID:   uintPtr(period.ID),
		Metadata: map[string]interface{}{
			"name":          period.Name,
			"starts_on":     period.StartsOn.Format(time.RFC3339),
			"ends_on":       period.EndsOn.Format(time.RFC3339),
			"target_points": period.TargetPoints.String(),
		},
	})

	return dto.NewPeriodResponse(period), nil
}

func (s *periodService) List(ctx context.Context) ([]dto.PeriodResponse, error) {
	periods, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.PeriodResponse, 0, len(periods))
	for _, period := range periods {
		responses = append(responses, dto.NewPeriodResponse(period))
	}
	return responses, nil
}

func (s *periodService) Get(ctx context.Context, id uint) (models.AccrualPeriod, error) {
	period, err := s.store.GetPeriod(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AccrualPeriod{}, ErrPeriodNotFound
		}
		return models.AccrualPeriod{}, err
	}
	return period, nil
}

func (s *periodService) PeriodAt(ctx context.Context, at time.Time) (models.AccrualPeriod, error) {
	return periodAt(ctx, s.store, at)
}

// periodAt resolves the period containing at using store, which may be a transaction.
func periodAt(ctx context.Context, store repository.CPDStore, at time.Time) (models.AccrualPeriod, error) {
	periods, err := store.ListPeriods(ctx)
	if err != nil {
		return models.AccrualPeriod{}, err
	}
	for _, period := range periods {
		if period.Contains(at) {
			return period, nil
		}
	}
	return models.AccrualPeriod{}, ErrNoOpenPeriod
}
