package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// AdminPeriodHandler manages accrual periods.
type AdminPeriodHandler struct {
	service service.PeriodService
	logger  zerolog.Logger
}

// NewAdminPeriodHandler constructs the handler.
func NewAdminPeriodHandler(service service.PeriodService, logger zerolog.Logger) *AdminPeriodHandler {
	return &AdminPeriodHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_period_handler").Logger(),
	}
}

// Register attaches period routes to the router group.
func (h *AdminPeriodHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", adminOnly(h.create))
}

func (h *AdminPeriodHandler) list(c *fiber.Ctx) error {
	periods, err := h.service.List(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, "failed to list accrual periods")
	}
	return utils.SendSuccess(c, "accrual periods retrieved", periods)
}

func (h *AdminPeriodHandler) create(c *fiber.Ctx) error {
	var payload dto.PeriodCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	period, err := h.service.Create(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create accrual period")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "accrual period created", period)
}
