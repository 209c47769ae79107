package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// AdminCPDHandler exposes the reviewer side of CPD verification.
type AdminCPDHandler struct {
	service service.VerificationService
	logger  zerolog.Logger
}

// NewAdminCPDHandler constructs the handler.
func NewAdminCPDHandler(service service.VerificationService, logger zerolog.Logger) *AdminCPDHandler {
	return &AdminCPDHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_cpd_handler").Logger(),
	}
}

// Register attaches review routes to the admin router group.
func (h *AdminCPDHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("/bulk-approve", h.bulkApprove)
	router.Post("/:id/open", h.open)
	router.Post("/:id/approve", h.approve)
	router.Post("/:id/reject", h.withComment(h.service.Reject, "cpd record rejected"))
	router.Post("/:id/request-revision", h.withComment(h.service.RequestRevision, "revision requested"))
	router.Post("/:id/correct", h.withComment(h.service.Correct, "verification corrected"))
}

func (h *AdminCPDHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c, 25, 200)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	memberID, err := parseQueryUint(c, "member_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid member id")
	}
	periodID, err := parseQueryUint(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid period id")
	}

	list, err := h.service.List(c.UserContext(), dto.CPDRecordListRequest{
		Page:     page,
		PageSize: pageSize,
		MemberID: memberID,
		PeriodID: periodID,
		Status:   c.Query("status"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list cpd records")
	}

	return utils.OK(c, list.Items, "cpd records retrieved", list.Pagination)
}

func (h *AdminCPDHandler) open(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Open(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to open cpd record")
	}
	return utils.SendSuccess(c, "review opened", result)
}

func (h *AdminCPDHandler) approve(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Approve(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to approve cpd record")
	}
	return utils.SendSuccess(c, "cpd record verified", result)
}

type commentedAction func(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor service.ActivityActor) (dto.CPDTransitionResult, error)

func (h *AdminCPDHandler) withComment(action commentedAction, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseUintParam(c, "id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		var payload dto.CPDReviewRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}

		result, err := action(c.UserContext(), id, payload, activityActorFromContext(c))
		if err != nil {
			return respondError(c, h.logger, err, "failed to review cpd record")
		}
		return utils.SendSuccess(c, message, result)
	}
}

func (h *AdminCPDHandler) bulkApprove(c *fiber.Ctx) error {
	var payload dto.CPDBulkApproveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.BulkApprove(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to bulk approve cpd records")
	}

	return utils.OK(c, result, "bulk approval processed", fiber.Map{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}
