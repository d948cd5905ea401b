package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/utils"
)

// ProfileHandler manages the current customer's profile and points.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the authenticated customer.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	var customer models.Customer
	if err := h.db.WithContext(c.UserContext()).First(&customer, "id = ?", customerID).Error; err != nil {
		return notFound(err, "customer")
	}

	return respond(c, customer)
}

type updateProfileRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=120"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

// UpdateProfile updates name and address. Omitted fields are left alone.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		updates["address"] = strings.TrimSpace(*req.Address)
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	db := h.db.WithContext(c.UserContext())
	if err := db.Model(&models.Customer{}).Where("id = ?", customerID).Updates(updates).Error; err != nil {
		return err
	}

	var customer models.Customer
	if err := db.First(&customer, "id = ?", customerID).Error; err != nil {
		return notFound(err, "customer")
	}

	return respond(c, customer)
}

// ListPoints returns the customer's loyalty ledger, newest first, along with
// the current balance.
func (h *ProfileHandler) ListPoints(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	var customer models.Customer
	if err := db.First(&customer, "id = ?", customerID).Error; err != nil {
		return notFound(err, "customer")
	}

	pg := utils.ParsePagination(c)
	query := db.Model(&models.PointsTransaction{}).Where("customer_id = ?", customerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.PointsTransaction
	if err := query.Order("occurred_at desc").Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       items,
		"balance":    customer.Points,
		"pagination": pg.Meta(total),
	})
}
