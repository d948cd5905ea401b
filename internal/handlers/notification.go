package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/utils"
)

// NotificationHandler manages push tokens and admin broadcasts.
type NotificationHandler struct {
	db   *gorm.DB
	push *services.PushService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(db *gorm.DB, push *services.PushService) *NotificationHandler {
	return &NotificationHandler{db: db, push: push}
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"max=255"`
}

// RegisterToken stores the current customer's Expo push token. An empty
// token unregisters the device.
func (h *NotificationHandler) RegisterToken(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	var req pushTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.push.RegisterToken(c.UserContext(), customerID, req.Token); err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "message": "push token saved"})
}

// Send broadcasts a notification to every reachable customer.
func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	var req services.BroadcastInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	notification, err := h.push.Broadcast(c.UserContext(), req)
	if err != nil {
		return serviceError(err)
	}

	return respondCreated(c, notification)
}

// List returns past broadcasts, newest first.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.PushNotification{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.PushNotification
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}

	return respondList(c, items, pg, total)
}
