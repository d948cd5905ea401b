package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/freshcart/internal/services"
)

// SettingsHandler manages the store settings singleton.
type SettingsHandler struct {
	settings *services.SettingsService
}

// NewSettingsHandler constructs SettingsHandler.
func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSettings returns the store settings, or defaults when none were saved.
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Get(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, settings)
}

// UpdateSettings replaces the store settings.
func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req services.SettingsInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	settings, err := h.settings.Update(c.UserContext(), req)
	if err != nil {
		return serviceError(err)
	}

	return respond(c, settings)
}
