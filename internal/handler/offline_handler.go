package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/offline"
	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// OfflineHandler publishes the service-worker cache policy so the worker script stays thin.
type OfflineHandler struct {
	policy    offline.Policy
	validator *validator.Validate
	logger    zerolog.Logger
}

// OfflineActivateRequest lists the cache names present in the browser.
type OfflineActivateRequest struct {
	Caches []string `json:"caches"`
}

// NewOfflineHandler constructs the handler.
func NewOfflineHandler(policy offline.Policy, validate *validator.Validate, logger zerolog.Logger) *OfflineHandler {
	return &OfflineHandler{
		policy:    policy,
		validator: validate,
		logger:    logger.With().Str("component", "offline_handler").Logger(),
	}
}

// Register attaches the offline policy routes.
func (h *OfflineHandler) Register(router fiber.Router) {
	router.Get("/manifest", h.manifest)
	router.Post("/route", h.route)
	router.Post("/activate", h.activate)
}

func (h *OfflineHandler) manifest(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return utils.SendSuccess(c, "offline manifest", h.policy.Manifest())
}

func (h *OfflineHandler) route(c *fiber.Ctx) error {
	var req offline.Request
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}

	route, err := h.policy.Route(req)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.SendSuccess(c, "offline route", route)
}

func (h *OfflineHandler) activate(c *fiber.Ctx) error {
	var req OfflineActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	stale := h.policy.Stale(req.Caches)
	requestLogger(h.logger, c).Debug().Strs("stale", stale).Msg("offline caches evicted")
	return utils.SendSuccess(c, "offline activation", fiber.Map{
		"version": h.policy.Version,
		"evict":   stale,
	})
}
