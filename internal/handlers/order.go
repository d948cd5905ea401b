package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/middleware"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/utils"
)

// OrderHandler exposes checkout and order management.
type OrderHandler struct {
	db     *gorm.DB
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, orders *services.OrderService) *OrderHandler {
	return &OrderHandler{db: db, orders: orders}
}

func currentCustomer(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

// CreateOrder places an order for the current customer. Totals are computed
// from current catalog prices.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	var req services.PlaceOrderInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.PlaceOrder(c.UserContext(), customerID, req)
	if err != nil {
		return serviceError(err)
	}

	return respondCreated(c, order)
}

// ListOrders returns the current customer's orders, newest first.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Order{}).Where("customer_id = ?", customerID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").Limit(pg.Limit).Offset(pg.Offset).
		Order("placed_at desc").Find(&orders).Error; err != nil {
		return err
	}

	return respondList(c, orders, pg, total)
}

// GetOrder returns one of the current customer's orders.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var order models.Order
	if err := h.db.WithContext(c.UserContext()).Preload("Items").
		Where("customer_id = ?", customerID).
		First(&order, "id = ?", id).Error; err != nil {
		return notFound(err, "order")
	}

	return respond(c, order)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelOrder cancels one of the current customer's orders while it is
// still processing.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	customerID, err := currentCustomer(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	order, err := h.orders.CancelOrder(c.UserContext(), id, services.CancelInput{
		Reason:     strings.TrimSpace(req.Reason),
		CustomerID: &customerID,
	})
	if err != nil {
		return serviceError(err)
	}

	return respond(c, order)
}

// AdminListOrders lists all orders with status, search and date filters.
func (h *OrderHandler) AdminListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if v := c.Query("customer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid customer_id")
		}
		query = query.Where("customer_id = ?", id)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(order_number) LIKE ? OR phone LIKE ?", q, q)
	}

	from, to, err := parseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		return err
	}
	if !from.IsZero() {
		query = query.Where("placed_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("placed_at < ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Customer").Preload("Items").
		Limit(pg.Limit).Offset(pg.Offset).
		Order("placed_at desc").Find(&orders).Error; err != nil {
		return err
	}

	return respondList(c, orders, pg, total)
}

// AdminGetOrder returns any order with its items and customer.
func (h *OrderHandler) AdminGetOrder(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var order models.Order
	if err := h.db.WithContext(c.UserContext()).Preload("Items").Preload("Customer").
		First(&order, "id = ?", id).Error; err != nil {
		return notFound(err, "order")
	}

	return respond(c, order)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing accepted fulfilled cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

// AdminUpdateStatus moves an order to the next status.
func (h *OrderHandler) AdminUpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req statusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), id, req.Status, strings.TrimSpace(req.Reason))
	if err != nil {
		return serviceError(err)
	}

	return respond(c, order)
}

// AdminCancelOrder cancels a processing or accepted order.
func (h *OrderHandler) AdminCancelOrder(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	order, err := h.orders.CancelOrder(c.UserContext(), id, services.CancelInput{Reason: strings.TrimSpace(req.Reason)})
	if err != nil {
		return serviceError(err)
	}

	return respond(c, order)
}

// parseDateRange parses inclusive YYYY-MM-DD bounds. The returned upper bound
// is exclusive (the day after to).
func parseDateRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	var from, to time.Time
	if rawFrom != "" {
		t, err := time.Parse(time.DateOnly, rawFrom)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		from = t
	}
	if rawTo != "" {
		t, err := time.Parse(time.DateOnly, rawTo)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, fiber.NewError(fiber.StatusBadRequest, "from must not be after to")
	}
	return from, to, nil
}
