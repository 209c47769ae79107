package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// PrincipalSource resolves the authenticated member into an access principal.
type PrincipalSource interface {
	Principal(ctx context.Context, id uint) (access.Principal, error)
}

// ArtifactHandler serves the gated resource and announcement feed.
type ArtifactHandler struct {
	service    service.ArtifactService
	principals PrincipalSource
	logger     zerolog.Logger
}

// NewArtifactHandler constructs the handler.
func NewArtifactHandler(service service.ArtifactService, principals PrincipalSource, logger zerolog.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		service:    service,
		principals: principals,
		logger:     logger.With().Str("component", "artifact_handler").Logger(),
	}
}

// Register attaches member-facing artifact routes.
func (h *ArtifactHandler) Register(router fiber.Router) {
	router.Get("", h.feed)
	router.Get("/:id/access", h.check)
}

// RegisterAdmin attaches the publishing route. Only admins publish.
func (h *ArtifactHandler) RegisterAdmin(router fiber.Router) {
	router.Post("", adminOnly(h.create))
}

func (h *ArtifactHandler) principal(c *fiber.Ctx) (access.Principal, error) {
	return h.principals.Principal(c.UserContext(), memberIDFromContext(c))
}

func (h *ArtifactHandler) feed(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c, 20, 100)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	principal, err := h.principal(c)
	if err != nil {
		return respondError(c, h.logger, err, "failed to resolve member")
	}

	feed, err := h.service.Feed(c.UserContext(), principal, dto.ArtifactListRequest{
		Kind:     c.Query("kind"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to load artifacts")
	}

	return utils.OK(c, feed.Items, "artifacts retrieved", feed.Pagination)
}

func (h *ArtifactHandler) check(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	principal, err := h.principal(c)
	if err != nil {
		return respondError(c, h.logger, err, "failed to resolve member")
	}

	decision, err := h.service.Check(c.UserContext(), principal, id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to evaluate access")
	}

	return utils.SendSuccess(c, "access evaluated", decision)
}

func (h *ArtifactHandler) create(c *fiber.Ctx) error {
	var payload dto.ArtifactCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	artifact, err := h.service.Create(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to publish artifact")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "artifact published", artifact)
}
