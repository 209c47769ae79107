package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/service"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// MemberHandler serves self-service registration and the member profile.
type MemberHandler struct {
	service service.MemberService
	logger  zerolog.Logger
}

// NewMemberHandler constructs the handler.
func NewMemberHandler(service service.MemberService, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		service: service,
		logger:  logger.With().Str("component", "member_handler").Logger(),
	}
}

// RegisterPublic attaches the unauthenticated registration route.
func (h *MemberHandler) RegisterPublic(router fiber.Router) {
	router.Post("/register", h.register)
}

// Register attaches the authenticated profile routes.
func (h *MemberHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
	router.Put("/me/student-profile", h.updateStudentProfile)
}

func (h *MemberHandler) register(c *fiber.Ctx) error {
	var payload dto.MemberRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	member, err := h.service.Register(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to register member")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "member registered", member)
}

func (h *MemberHandler) me(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	member, err := h.service.Get(c.UserContext(), memberID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load member")
	}

	return utils.SendSuccess(c, "member retrieved", member)
}

func (h *MemberHandler) updateStudentProfile(c *fiber.Ctx) error {
	memberID := memberIDFromContext(c)
	if memberID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.StudentProfileRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	member, err := h.service.UpdateStudentProfile(c.UserContext(), memberID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update student profile")
	}

	return utils.SendSuccess(c, "student profile updated", member)
}
