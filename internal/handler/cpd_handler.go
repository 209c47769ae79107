package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// CPDHandler exposes the member-facing CPD tracker.
type CPDHandler struct {
	verification service.VerificationService
	ledger       service.CPDLedgerService
	submitLimit  fiber.Handler
	logger       zerolog.Logger
}

// NewCPDHandler constructs the handler. submitLimit guards submissions and may be nil.
func NewCPDHandler(verification service.VerificationService, ledger service.CPDLedgerService, submitLimit fiber.Handler, logger zerolog.Logger) *CPDHandler {
	if submitLimit == nil {
		submitLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &CPDHandler{
		verification: verification,
		ledger:       ledger,
		submitLimit:  submitLimit,
		logger:       logger.With().Str("component", "cpd_handler").Logger(),
	}
}

// Register attaches CPD routes to the member router group.
func (h *CPDHandler) Register(router fiber.Router) {
	router.Post("/records", h.submitLimit, h.submit)
	router.Get("/records", h.listMine)
	router.Put("/records/:id/resubmit", h.submitLimit, h.resubmit)
	router.Get("/progress", h.progress)
}

func (h *CPDHandler) submit(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.CPDRecordSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.verification.Submit(c.UserContext(), memberID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit cpd record")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "cpd record submitted", record)
}

func (h *CPDHandler) resubmit(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	recordID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CPDRecordResubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.verification.Resubmit(c.UserContext(), memberID, recordID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to resubmit cpd record")
	}

	return utils.SendSuccess(c, "cpd record resubmitted", record)
}

func (h *CPDHandler) listMine(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	page, pageSize, err := parsePagination(c, 20, 100)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	periodID, err := parseQueryUint(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid period id")
	}

	list, err := h.verification.ListMine(c.UserContext(), memberID, dto.CPDRecordListRequest{
		Page:     page,
		PageSize: pageSize,
		PeriodID: periodID,
		Status:   c.Query("status"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list cpd records")
	}

	return utils.OK(c, list.Items, "cpd records retrieved", list.Pagination)
}

func (h *CPDHandler) progress(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	periodID, err := parseQueryUint(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid period id")
	}

	var progress dto.CPDProgressResponse
	if periodID > 0 {
		progress, err = h.ledger.Progress(c.UserContext(), memberID, periodID)
	} else {
		progress, err = h.ledger.CurrentPeriodProgress(c.UserContext(), memberID)
	}
	if err != nil {
		return respondError(c, h.logger, err, "failed to load cpd progress")
	}

	return utils.OK(c, progress, "cpd progress retrieved", fiber.Map{"cache_hit": progress.CacheHit})
}
