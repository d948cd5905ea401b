package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/utils"
)

// AdminHandler manages dashboard analytics and customer administration.
type AdminHandler struct {
	db        *gorm.DB
	analytics *services.AnalyticsService
	log       *zap.Logger
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, analytics *services.AnalyticsService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, analytics: analytics, log: log}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	summary, err := h.analytics.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, summary)
}

// SalesSeries returns daily revenue for the last ?days days.
func (h *AdminHandler) SalesSeries(c *fiber.Ctx) error {
	days, _ := strconv.Atoi(c.Query("days"))
	series, err := h.analytics.SalesSeries(c.UserContext(), days)
	if err != nil {
		return err
	}
	return respond(c, series)
}

// TopProducts returns best sellers by quantity.
func (h *AdminHandler) TopProducts(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	top, err := h.analytics.TopProducts(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return respond(c, top)
}

// RecentOrders returns the most recent 5 orders for the dashboard.
func (h *AdminHandler) RecentOrders(c *fiber.Ctx) error {
	var orders []models.Order
	if err := h.db.WithContext(c.UserContext()).Preload("Items").Preload("Customer").
		Order("placed_at desc").
		Limit(5).
		Find(&orders).Error; err != nil {
		return err
	}

	return respond(c, orders)
}

type customerStats struct {
	CustomerID uuid.UUID
	OrderCount int64
	TotalSpent decimal.Decimal
}

type customerResponse struct {
	models.Customer
	OrderCount int64           `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

func (h *AdminHandler) customerStats(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]customerStats, error) {
	out := make(map[uuid.UUID]customerStats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var stats []customerStats
	if err := db.Model(&models.Order{}).
		Select("customer_id, count(*) as order_count, COALESCE(SUM(sum), 0) as total_spent").
		Where("customer_id IN ? AND status <> ?", ids, models.OrderCancelled).
		Group("customer_id").
		Scan(&stats).Error; err != nil {
		return nil, err
	}

	for _, s := range stats {
		out[s.CustomerID] = s
	}
	return out, nil
}

// ListCustomers returns customers with their order count and total spent.
func (h *AdminHandler) ListCustomers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	db := h.db.WithContext(c.UserContext())
	query := db.Model(&models.Customer{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR phone LIKE ?", q, q)
	}
	switch c.Query("blocked") {
	case "true":
		query = query.Where("is_blocked = ?", true)
	case "false":
		query = query.Where("is_blocked = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var customers []models.Customer
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&customers).Error; err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(customers))
	for i, cu := range customers {
		ids[i] = cu.ID
	}
	stats, err := h.customerStats(db, ids)
	if err != nil {
		return err
	}

	result := make([]customerResponse, len(customers))
	for i, cu := range customers {
		s := stats[cu.ID]
		result[i] = customerResponse{Customer: cu, OrderCount: s.OrderCount, TotalSpent: s.TotalSpent}
	}

	return respondList(c, result, pg, total)
}

// GetCustomer returns one customer with order statistics.
func (h *AdminHandler) GetCustomer(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	var customer models.Customer
	if err := db.First(&customer, "id = ?", id).Error; err != nil {
		return notFound(err, "customer")
	}

	stats, err := h.customerStats(db, []uuid.UUID{id})
	if err != nil {
		return err
	}
	s := stats[id]

	return respond(c, customerResponse{Customer: customer, OrderCount: s.OrderCount, TotalSpent: s.TotalSpent})
}

type blockRequest struct {
	Blocked *bool `json:"blocked" validate:"required"`
}

// SetCustomerBlocked blocks or unblocks a customer. Blocked customers cannot
// log in, order, or receive broadcasts.
func (h *AdminHandler) SetCustomerBlocked(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req blockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	res := db.Model(&models.Customer{}).Where("id = ?", id).Update("is_blocked", *req.Blocked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "customer not found")
	}

	var customer models.Customer
	if err := db.First(&customer, "id = ?", id).Error; err != nil {
		return err
	}

	h.log.Info("customer block changed",
		zap.String("customer_id", id.String()),
		zap.Bool("blocked", customer.IsBlocked),
	)
	return respond(c, customer)
}
