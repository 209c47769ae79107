package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

var domainErrors = []errorMapping{
	{service.ErrRecordNotFound, fiber.StatusNotFound, "cpd record not found"},
	{service.ErrMemberNotFound, fiber.StatusNotFound, "member not found"},
	{service.ErrArtifactNotFound, fiber.StatusNotFound, "artifact not found"},
	{service.ErrPeriodNotFound, fiber.StatusNotFound, "accrual period not found"},
	{service.ErrNotRecordOwner, fiber.StatusForbidden, "record belongs to another member"},
	{service.ErrInvalidTransition, fiber.StatusConflict, "transition not allowed from the current status"},
	{service.ErrRecordConflict, fiber.StatusConflict, "record changed concurrently, retry"},
	{service.ErrLedgerConflict, fiber.StatusConflict, "ledger changed concurrently, retry"},
	{service.ErrLedgerIntegrity, fiber.StatusConflict, "ledger integrity violation"},
	{service.ErrPeriodOverlap, fiber.StatusConflict, "accrual period overlaps an existing period"},
	{service.ErrMemberExists, fiber.StatusConflict, "member already registered"},
	{service.ErrMatricTaken, fiber.StatusConflict, "matric number already registered"},
	{service.ErrNoOpenPeriod, fiber.StatusUnprocessableEntity, "no accrual period covers the given date"},
	{service.ErrCommentRequired, fiber.StatusBadRequest, "reviewer comment is required"},
	{service.ErrInvalidPoints, fiber.StatusBadRequest, "claimed points out of range"},
	{service.ErrCompletedInFuture, fiber.StatusBadRequest, "activity completion date is in the future"},
	{service.ErrInvalidActivityName, fiber.StatusBadRequest, "activity name is too short"},
	{service.ErrBulkTooLarge, fiber.StatusBadRequest, "too many records in bulk request"},
	{service.ErrInvalidTarget, fiber.StatusBadRequest, "target points must be positive"},
	{service.ErrInvalidCommittee, fiber.StatusBadRequest, "committee id is required"},
	{service.ErrInvalidMatric, fiber.StatusBadRequest, "matric number may contain only letters, digits and slashes"},
	{service.ErrInvalidInstitution, fiber.StatusBadRequest, "institution is required"},
}

// respondError maps domain and validation errors onto the JSON envelope. Anything
// unrecognised is logged and reported as a 500 with fallback as the message.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	if isValidationError(err) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}
	for _, mapping := range domainErrors {
		if errors.Is(err, mapping.target) {
			return utils.SendError(c, mapping.status, mapping.message)
		}
	}
	requestLogger(logger, c).Error().Err(err).Msg(fallback)
	return utils.SendError(c, fiber.StatusInternalServerError, fallback)
}
