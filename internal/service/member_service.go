package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/events"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/tier"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

var (
	// ErrMemberNotFound indicates the member does not exist.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberExists indicates the username or email is already registered.
	ErrMemberExists = errors.New("member already registered")
	// ErrInvalidCommittee indicates a zero committee identifier.
	ErrInvalidCommittee = errors.New("committee id is required")
	// ErrInvalidMatric indicates a matric number outside letters, digits and slashes.
	ErrInvalidMatric = errors.New("invalid matric number")
	// ErrInvalidInstitution indicates an institution id that is blank once normalised.
	ErrInvalidInstitution = errors.New("institution is required")
	// ErrMatricTaken indicates another member already filed the matric number.
	ErrMatricTaken = errors.New("matric number already registered")
)

var matricPattern = regexp.MustCompile(`^[A-Z0-9/]{5,30}$`)

// MemberService manages member records along the tier and verification axes.
type MemberService interface {
	Register(ctx context.Context, payload dto.MemberRegisterRequest) (dto.MemberResponse, error)
	Get(ctx context.Context, id uint) (dto.MemberResponse, error)
	Principal(ctx context.Context, id uint) (access.Principal, error)
	Verify(ctx context.Context, id uint, actor ActivityActor) (dto.MemberResponse, error)
	ChangeTier(ctx context.Context, id uint, payload dto.MemberTierRequest, actor ActivityActor) (dto.MemberResponse, error)
	AddCommittee(ctx context.Context, id, committeeID uint, actor ActivityActor) (dto.MemberResponse, error)
	RemoveCommittee(ctx context.Context, id, committeeID uint, actor ActivityActor) (dto.MemberResponse, error)
	UpdateStudentProfile(ctx context.Context, id uint, payload dto.StudentProfileRequest) (dto.MemberResponse, error)
}

type memberService struct {
	repo      repository.MemberRepository
	ledger    CPDLedgerService
	emitter   events.Emitter
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewMemberService constructs the member service.
func NewMemberService(repo repository.MemberRepository, ledger CPDLedgerService, emitter events.Emitter, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) MemberService {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &memberService{
		repo:      repo,
		ledger:    ledger,
		emitter:   emitter,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "member_service").Logger(),
		now:       time.Now,
	}
}

// Register creates an unverified member. Self-service registration may only claim
// the Public or Student tier.
func (s *memberService) Register(ctx context.Context, payload dto.MemberRegisterRequest) (dto.MemberResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MemberResponse{}, err
	}

	level := tier.Public
	if payload.Tier != "" {
		parsed, err := tier.Parse(payload.Tier)
		if err != nil {
			return dto.MemberResponse{}, err
		}
		level = parsed
	}

	member := models.Member{
		Username:    strings.TrimSpace(payload.Username),
		Email:       strings.ToLower(strings.TrimSpace(payload.Email)),
		Phone:       strings.TrimSpace(payload.Phone),
		Tier:        level,
		Institution: access.Institution(payload.Institution).InstitutionID,
	}

	if err := s.repo.Create(ctx, &member); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.MemberResponse{}, ErrMemberExists
		}
		return dto.MemberResponse{}, err
	}

	s.logger.Info().Uint("member_id", member.ID).Str("tier", member.Tier.String()).Msg("member registered")
	return dto.NewMemberResponse(member, decimal.Zero), nil
}

func (s *memberService) Get(ctx context.Context, id uint) (dto.MemberResponse, error) {
	member, err := s.load(ctx, id)
	if err != nil {
		return dto.MemberResponse{}, err
	}
	return s.respond(ctx, member), nil
}

func (s *memberService) Principal(ctx context.Context, id uint) (access.Principal, error) {
	member, err := s.load(ctx, id)
	if err != nil {
		return access.Principal{}, err
	}
	return member.Principal(), nil
}

// Verify confirms a member's identity. Verifying an already verified member is a no-op.
func (s *memberService) Verify(ctx context.Context, id uint, actor ActivityActor) (dto.MemberResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/naa-portal-api/internal/service/member")
	ctx, span := tracer.Start(ctx, "members.verify")
	span.SetAttributes(
		attribute.Int64("member.id", int64(id)),
		attribute.Int64("member.actor_id", int64(actor.ID)),
	)
	defer span.End()

	member, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "member_lookup_failed")
		return dto.MemberResponse{}, err
	}

	if member.Verified {
		span.SetAttributes(attribute.Bool("member.idempotent", true))
		return s.respond(ctx, member), nil
	}

	verifiedAt := s.now().UTC()
	changed, err := s.repo.MarkVerified(ctx, member.ID, verifiedAt, actor.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "member_update_failed")
		return dto.MemberResponse{}, err
	}

	member, err = s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return dto.MemberResponse{}, err
	}
	if !changed {
		// Another staff member verified first; they own the event.
		span.SetAttributes(attribute.Bool("member.idempotent", true))
		return s.respond(ctx, member), nil
	}

	if err := s.emitter.Emit(ctx, events.Event{
		Type:       workflow.EventPrincipalVerified,
		MemberID:   member.ID,
		ActorID:    actor.ID,
		OccurredAt: verifiedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("member_id", member.ID).Msg("failed to emit verification event")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "member.verified",
		EntityType: "member",
		EntityID:   uintPtr(member.ID),
		Metadata:   map[string]interface{}{"tier": member.Tier.String(), "email": member.Email},
	})

	return s.respond(ctx, member), nil
}

func (s *memberService) ChangeTier(ctx context.Context, id uint, payload dto.MemberTierRequest, actor ActivityActor) (dto.MemberResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MemberResponse{}, err
	}

	level, err := tier.Parse(payload.Tier)
	if err != nil {
		return dto.MemberResponse{}, err
	}

	member, err := s.load(ctx, id)
	if err != nil {
		return dto.MemberResponse{}, err
	}

	previous := member.Tier
	if previous == level {
		return s.respond(ctx, member), nil
	}

	if err := s.repo.SetTier(ctx, member.ID, level); err != nil {
		return dto.MemberResponse{}, err
	}
	member.Tier = level

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "member.tier_changed",
		EntityType: "member",
		EntityID:   uintPtr(member.ID),
		Metadata:   map[string]interface{}{"from": previous.String(), "to": level.String()},
	})

	return s.respond(ctx, member), nil
}

func (s *memberService) AddCommittee(ctx context.Context, id, committeeID uint, actor ActivityActor) (dto.MemberResponse, error) {
	return s.changeCommittee(ctx, id, committeeID, actor, true)
}

func (s *memberService) RemoveCommittee(ctx context.Context, id, committeeID uint, actor ActivityActor) (dto.MemberResponse, error) {
	return s.changeCommittee(ctx, id, committeeID, actor, false)
}

func (s *memberService) changeCommittee(ctx context.Context, id, committeeID uint, actor ActivityActor, join bool) (dto.MemberResponse, error) {
	if committeeID == 0 {
		return dto.MemberResponse{}, ErrInvalidCommittee
	}
	if _, err := s.load(ctx, id); err != nil {
		return dto.MemberResponse{}, err
	}

	action := "member.committee_added"
	var err error
	if join {
		err = s.repo.AddCommittee(ctx, id, committeeID)
	} else {
		action = "member.committee_removed"
		err = s.repo.RemoveCommittee(ctx, id, committeeID)
	}
	if err != nil {
		return dto.MemberResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "member",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"committee_id": committeeID},
	})

	return s.Get(ctx, id)
}

// UpdateStudentProfile files the member's university details. The institution is what
// institution-scoped artifacts match against, so the feed follows it immediately.
func (s *memberService) UpdateStudentProfile(ctx context.Context, id uint, payload dto.StudentProfileRequest) (dto.MemberResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MemberResponse{}, err
	}

	matric := strings.ToUpper(strings.ReplaceAll(payload.MatricNumber, " ", ""))
	if !matricPattern.MatchString(matric) {
		return dto.MemberResponse{}, ErrInvalidMatric
	}
	institution := access.Institution(payload.Institution).InstitutionID
	if institution == "" {
		return dto.MemberResponse{}, ErrInvalidInstitution
	}

	if _, err := s.load(ctx, id); err != nil {
		return dto.MemberResponse{}, err
	}

	err := s.repo.SetStudentProfile(ctx, id, repository.StudentProfile{
		Institution:  institution,
		MatricNumber: matric,
		Level:        payload.Level,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.MemberResponse{}, ErrMatricTaken
		}
		return dto.MemberResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    id,
		ActorRole:  "member",
		Action:     "member.student_profile_updated",
		EntityType: "member",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"institution": institution, "level": payload.Level},
	})

	return s.Get(ctx, id)
}

func (s *memberService) load(ctx context.Context, id uint) (models.Member, error) {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Member{}, ErrMemberNotFound
		}
		return models.Member{}, err
	}
	return member, nil
}

// respond attaches the current period total. A ledger failure degrades to zero points
// rather than hiding the member.
func (s *memberService) respond(ctx context.Context, member models.Member) dto.MemberResponse {
	points := decimal.Zero
	if s.ledger != nil {
		total, err := s.ledger.CurrentPeriodTotal(ctx, member.ID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("member_id", member.ID).Msg("failed to load accrual total")
		} else {
			points = total
		}
	}
	return dto.NewMemberResponse(member, points)
}
