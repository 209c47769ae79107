package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// AdminMemberHandler wires staff endpoints for verification, tiers, committees and ledger repair.
type AdminMemberHandler struct {
	members service.MemberService
	ledger  service.CPDLedgerService
	logger  zerolog.Logger
}

// NewAdminMemberHandler constructs the handler.
func NewAdminMemberHandler(members service.MemberService, ledger service.CPDLedgerService, logger zerolog.Logger) *AdminMemberHandler {
	return &AdminMemberHandler{
		members: members,
		ledger:  ledger,
		logger:  logger.With().Str("component", "admin_member_handler").Logger(),
	}
}

// Register attaches member admin routes to the router group. Reviewers may read members
// and reconcile ledgers; changing either principal axis or committees needs an admin.
func (h *AdminMemberHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Post("/:id/verify", adminOnly(h.verify))
	router.Patch("/:id/tier", adminOnly(h.changeTier))
	router.Put("/:id/committees/:committeeId", adminOnly(h.addCommittee))
	router.Delete("/:id/committees/:committeeId", adminOnly(h.removeCommittee))
	router.Post("/:id/ledger/reconcile", h.reconcile)
}

func (h *AdminMemberHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	member, err := h.members.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load member")
	}
	return utils.SendSuccess(c, "member retrieved", member)
}

func (h *AdminMemberHandler) verify(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	member, err := h.members.Verify(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to verify member")
	}
	return utils.SendSuccess(c, "member verified", member)
}

func (h *AdminMemberHandler) changeTier(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MemberTierRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	member, err := h.members.ChangeTier(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to change member tier")
	}
	return utils.SendSuccess(c, "member tier updated", member)
}

func (h *AdminMemberHandler) addCommittee(c *fiber.Ctx) error {
	return h.committee(c, h.members.AddCommittee, "committee membership added")
}

func (h *AdminMemberHandler) removeCommittee(c *fiber.Ctx) error {
	return h.committee(c, h.members.RemoveCommittee, "committee membership removed")
}

func (h *AdminMemberHandler) committee(c *fiber.Ctx, change func(ctx context.Context, id, committeeID uint, actor service.ActivityActor) (dto.MemberResponse, error), message string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	committeeID, err := parseUintParam(c, "committeeId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid committee identifier")
	}

	member, err := change(c.UserContext(), id, committeeID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update committee membership")
	}
	return utils.SendSuccess(c, message, member)
}

func (h *AdminMemberHandler) reconcile(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	periodID, err := parseQueryUint(c, "period_id")
	if err != nil || periodID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "period_id is required")
	}

	result, err := h.ledger.Reconcile(c.UserContext(), id, periodID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to reconcile ledger")
	}
	return utils.SendSuccess(c, "ledger reconciled", result)
}
