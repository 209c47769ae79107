package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/observability"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// ErrArtifactNotFound indicates the artifact does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactService publishes gated artifacts and answers visibility questions about them.
type ArtifactService interface {
	Create(ctx context.Context, payload dto.ArtifactCreateRequest, actor ActivityActor) (dto.ArtifactResponse, error)
	Check(ctx context.Context, principal access.Principal, artifactID uint) (dto.AccessDecisionResponse, error)
	Feed(ctx context.Context, principal access.Principal, req dto.ArtifactListRequest) (dto.ArtifactListResponse, error)
}

type artifactService struct {
	repo      repository.ArtifactRepository
	validator *validator.Validate
	activity  ActivityRecorder
	titles    *bluemonday.Policy
	bodies    *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewArtifactService constructs the artifact service.
func NewArtifactService(repo repository.ArtifactRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ArtifactService {
	return &artifactService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		titles:    bluemonday.StrictPolicy(),
		bodies:    bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "artifact_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/naa-portal-api/internal/service/artifact"),
		now:       time.Now,
	}
}

func (s *artifactService) Create(ctx context.Context, payload dto.ArtifactCreateRequest, actor ActivityActor) (dto.ArtifactResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ArtifactResponse{}, err
	}

	required, err := tier.Parse(payload.RequiredTier)
	if err != nil {
		return dto.ArtifactResponse{}, err
	}

	artifact := models.Artifact{
		Kind:          payload.Kind,
		Title:         strings.TrimSpace(s.titles.Sanitize(payload.Title)),
		Body:          s.bodies.Sanitize(payload.Body),
		Category:      payload.Category,
		FileReference: strings.TrimSpace(payload.FileReference),
		RequiredTier:  required,
		ScopeKind:     access.ScopeKind(payload.ScopeKind),
		CreatedBy:     actor.ID,
		PublishedAt:   s.now().UTC(),
	}
	switch artifact.ScopeKind {
	case access.ScopeInstitution:
		artifact.ScopeInstitution = access.Institution(payload.ScopeInstitution).InstitutionID
	case access.ScopeCommittee:
		artifact.ScopeCommitteeID = payload.ScopeCommitteeID
	}

	if err := s.repo.Create(ctx, &artifact); err != nil {
		return dto.ArtifactResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "artifact.published",
		EntityType: "artifact",
		EntityID:   uintPtr(artifact.ID),
		Metadata: map[string]interface{}{
			"kind":          artifact.Kind,
			"required_tier": artifact.RequiredTier.String(),
			"scope_kind":    string(artifact.ScopeKind),
		},
	})

	return dto.NewArtifactResponse(artifact), nil
}

func (s *artifactService) Check(ctx context.Context, principal access.Principal, artifactID uint) (dto.AccessDecisionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "access.check", trace.WithAttributes(
		attribute.Int64("access.artifact_id", int64(artifactID)),
		attribute.Int64("access.member_id", int64(principal.ID)),
	))
	defer span.End()

	artifact, err := s.repo.GetByID(ctx, artifactID)
	if err != nil {
		span.RecordError(err)
		if isNotFound(err) {
			return dto.AccessDecisionResponse{}, ErrArtifactNotFound
		}
		return dto.AccessDecisionResponse{}, err
	}

	decision := access.CanView(principal, artifact.Gate())
	observability.AccessDecisions().WithLabelValues(decisionLabel(decision)).Inc()
	span.SetAttributes(
		attribute.Bool("access.allowed", decision.Allowed),
		attribute.String("access.reason", string(decision.Reason)),
	)

	return dto.AccessDecisionResponse{
		ArtifactID: artifact.ID,
		MemberID:   principal.ID,
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
	}, nil
}

// Feed lists the artifacts the principal may view, newest first.
func (s *artifactService) Feed(ctx context.Context, principal access.Principal, req dto.ArtifactListRequest) (dto.ArtifactListResponse, error) {
	ctx, span := s.tracer.Start(ctx, "access.feed", trace.WithAttributes(
		attribute.Int64("access.member_id", int64(principal.ID)),
		attribute.String("access.kind", req.Kind),
	))
	defer span.End()

	artifacts, err := s.repo.List(ctx, repository.ArtifactFilter{Kind: strings.TrimSpace(req.Kind)})
	if err != nil {
		span.RecordError(err)
		return dto.ArtifactListResponse{}, err
	}

	visible := make([]dto.ArtifactResponse, 0, len(artifacts))
	for _, artifact := range artifacts {
		if access.CanView(principal, artifact.Gate()).Allowed {
			visible = append(visible, dto.NewArtifactResponse(artifact))
		}
	}
	span.SetAttributes(
		attribute.Int("access.candidates", len(artifacts)),
		attribute.Int("access.visible", len(visible)),
	)

	total := int64(len(visible))
	if req.PageSize > 0 {
		page := req.Page
		if page <= 0 {
			page = 1
		}
		start := (page - 1) * req.PageSize
		if start > len(visible) {
			start = len(visible)
		}
		end := start + req.PageSize
		if end > len(visible) {
			end = len(visible)
		}
		visible = visible[start:end]
	}

	return dto.ArtifactListResponse{
		Items:      visible,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func decisionLabel(decision access.Decision) string {
	if decision.Allowed {
		return "allowed"
	}
	return string(decision.Reason)
}
