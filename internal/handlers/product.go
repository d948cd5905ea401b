package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/utils"
)

// ProductHandler manages product CRUD, stock and waitlists.
type ProductHandler struct {
	db     *gorm.DB
	images *storage.Images
	log    *zap.Logger
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, images *storage.Images, log *zap.Logger) *ProductHandler {
	return &ProductHandler{db: db, images: images, log: log}
}

const popularityExpr = `(SELECT COALESCE(SUM(order_items.quantity), 0) FROM order_items
	JOIN orders ON orders.id = order_items.order_id
	WHERE order_items.product_id = products.id AND orders.status <> 'cancelled') DESC`

// productSorts maps the sort query parameter to ORDER BY clauses.
var productSorts = map[string][]string{
	"newest":     {"products.created_at desc"},
	"price_asc":  {"products.price asc", "products.name asc"},
	"price_desc": {"products.price desc", "products.name asc"},
	"name":       {"products.name asc"},
	"popular":    {popularityExpr, "products.name asc"},
	"waitlist":   {"products.waitlist desc", "products.name asc"},
	"manual":     {"products.sort_order asc", "products.name asc"},
}

// ProductFilter is the parsed product listing query.
type ProductFilter struct {
	Search     string
	CategoryID *uuid.UUID
	InStock    *bool
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	IsActive   *bool
	Sort       string
}

// ParseProductFilter reads listing filters from the query string. Malformed
// values are rejected rather than ignored.
func ParseProductFilter(c *fiber.Ctx) (ProductFilter, error) {
	f := ProductFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Sort:   c.Query("sort", "newest"),
	}

	if _, ok := productSorts[f.Sort]; !ok {
		return f, fiber.NewError(fiber.StatusBadRequest, "unknown sort "+f.Sort)
	}

	if v := c.Query("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
		}
		f.CategoryID = &id
	}

	for name, dst := range map[string]**bool{"in_stock": &f.InStock, "is_active": &f.IsActive} {
		if v := c.Query(name); v != "" {
			b := v == "true" || v == "1"
			if !b && v != "false" && v != "0" {
				return f, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
			}
			*dst = &b
		}
	}

	for name, dst := range map[string]**decimal.Decimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		if v := c.Query(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
			}
			*dst = &d
		}
	}

	return f, nil
}

// Apply adds the filter's WHERE clauses to query.
func (f ProductFilter) Apply(query *gorm.DB) *gorm.DB {
	if f.Search != "" {
		q := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(products.name) LIKE ? OR LOWER(products.description) LIKE ?", q, q)
	}
	if f.CategoryID != nil {
		query = query.Where("products.category_id = ?", *f.CategoryID)
	}
	if f.InStock != nil {
		if *f.InStock {
			query = query.Where("products.stock > 0")
		} else {
			query = query.Where("products.stock <= 0")
		}
	}
	if f.MinPrice != nil {
		query = query.Where("products.price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		query = query.Where("products.price <= ?", *f.MaxPrice)
	}
	if f.IsActive != nil {
		query = query.Where("products.is_active = ?", *f.IsActive)
	}
	return query
}

// ListProducts returns paginated active products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	f, err := ParseProductFilter(c)
	if err != nil {
		return err
	}
	active := true
	f.IsActive = &active
	return h.listProducts(c, f)
}

// AdminListProducts lists every product; sort=waitlist surfaces demand for
// out-of-stock items.
func (h *ProductHandler) AdminListProducts(c *fiber.Ctx) error {
	f, err := ParseProductFilter(c)
	if err != nil {
		return err
	}
	return h.listProducts(c, f)
}

func (h *ProductHandler) listProducts(c *fiber.Ctx, f ProductFilter) error {
	pg := utils.ParsePagination(c)
	query := f.Apply(h.db.WithContext(c.UserContext()).Model(&models.Product{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	list := query.Preload("Category").Limit(pg.Limit).Offset(pg.Offset)
	for _, clause := range productSorts[f.Sort] {
		list = list.Order(clause)
	}

	var products []models.Product
	if err := list.Find(&products).Error; err != nil {
		return err
	}

	return respondList(c, products, pg, total)
}

// GetProduct loads a product with its category. Hidden products are only
// visible to admins.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	query := h.db.WithContext(c.UserContext()).Preload("Category")
	if !isAdmin(c) {
		query = query.Where("is_active = ?", true)
	}

	var product models.Product
	if err := query.First(&product, "id = ?", id).Error; err != nil {
		return notFound(err, "product")
	}

	return respond(c, product)
}

type productForm struct {
	Name        string     `json:"name" form:"name" validate:"required,max=200"`
	Description string     `json:"description" form:"description" validate:"max=5000"`
	Price       flexString `json:"price" form:"price" validate:"required"`
	OldPrice    flexString `json:"old_price" form:"old_price"`
	Unit        string     `json:"unit" form:"unit" validate:"max=20"`
	Stock       *int       `json:"stock" form:"stock" validate:"omitempty,min=0"`
	CategoryID  string     `json:"category_id" form:"category_id"`
	IsActive    *bool      `json:"is_active" form:"is_active"`
	SortOrder   int        `json:"sort_order" form:"sort_order"`
}

// apply copies validated form values onto product.
func (h *ProductHandler) apply(c *fiber.Ctx, form productForm, product *models.Product) error {
	price, err := parseMoney("price", form.Price)
	if err != nil {
		return err
	}
	if price.IsZero() {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "price must be positive")
	}
	oldPrice, err := parseMoney("old_price", form.OldPrice)
	if err != nil {
		return err
	}

	categoryID, err := parseOptionalUUID("category_id", form.CategoryID)
	if err != nil {
		return err
	}
	if categoryID != nil {
		var count int64
		if err := h.db.WithContext(c.UserContext()).Model(&models.Category{}).
			Where("id = ?", *categoryID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "category not found")
		}
	}

	product.Name = strings.TrimSpace(form.Name)
	product.Description = strings.TrimSpace(form.Description)
	product.Price = price
	product.OldPrice = oldPrice
	product.CategoryID = categoryID
	product.Category = nil
	product.SortOrder = form.SortOrder
	if unit := strings.TrimSpace(form.Unit); unit != "" {
		product.Unit = unit
	} else if product.Unit == "" {
		product.Unit = "pcs"
	}
	if form.Stock != nil {
		product.Stock = *form.Stock
	}
	if form.IsActive != nil {
		product.IsActive = *form.IsActive
	}
	return nil
}

// CreateProduct persists a new product from a multipart form.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var form productForm
	if err := parseBody(c, &form); err != nil {
		return err
	}

	product := models.Product{IsActive: true}
	if err := h.apply(c, form, &product); err != nil {
		return err
	}

	image, err := saveFormImage(c, h.images, "products")
	if err != nil {
		return err
	}
	product.Image = image

	if err := h.db.WithContext(c.UserContext()).Create(&product).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}

	return respondCreated(c, product)
}

// UpdateProduct replaces a product's editable fields. A new image replaces
// the old file.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.db.WithContext(c.UserContext()).First(&product, "id = ?", id).Error; err != nil {
		return notFound(err, "product")
	}

	var form productForm
	if err := parseBody(c, &form); err != nil {
		return err
	}
	if err := h.apply(c, form, &product); err != nil {
		return err
	}

	image, err := saveFormImage(c, h.images, "products")
	if err != nil {
		return err
	}
	oldImage := product.Image
	if image != "" {
		product.Image = image
	}

	if err := h.db.WithContext(c.UserContext()).Save(&product).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}
	if image != "" {
		removeImage(c.UserContext(), h.images, h.log, oldImage)
	}

	return respond(c, product)
}

// DeleteProduct removes a product. Past order lines keep their snapshot.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.db.WithContext(c.UserContext()).First(&product, "id = ?", id).Error; err != nil {
		return notFound(err, "product")
	}

	if err := h.db.WithContext(c.UserContext()).Delete(&product).Error; err != nil {
		return err
	}

	removeImage(c.UserContext(), h.images, h.log, product.Image)
	return c.SendStatus(fiber.StatusNoContent)
}

type stockRequest struct {
	Stock *int `json:"stock" validate:"omitempty,min=0"`
	Delta int  `json:"delta"`
}

// AdjustStock sets stock to an absolute value or shifts it by delta. Stock
// never drops below zero.
func (h *ProductHandler) AdjustStock(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req stockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Stock == nil && req.Delta == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "stock or delta is required")
	}

	db := h.db.WithContext(c.UserContext())
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		return notFound(err, "product")
	}

	var res *gorm.DB
	if req.Stock != nil {
		res = db.Model(&models.Product{}).Where("id = ?", id).UpdateColumn("stock", *req.Stock)
	} else {
		res = db.Model(&models.Product{}).
			Where("id = ? AND stock + ? >= 0", id, req.Delta).
			UpdateColumn("stock", gorm.Expr("stock + ?", req.Delta))
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "stock cannot go below zero")
	}

	if err := db.First(&product, "id = ?", id).Error; err != nil {
		return err
	}

	h.log.Info("stock adjusted",
		zap.String("product_id", id.String()),
		zap.Int("stock", product.Stock),
	)
	return respond(c, product)
}

// JoinWaitlist records interest in a product.
func (h *ProductHandler) JoinWaitlist(c *fiber.Ctx) error {
	return h.shiftWaitlist(c, gorm.Expr("waitlist + 1"))
}

// LeaveWaitlist withdraws interest. The count never drops below zero.
func (h *ProductHandler) LeaveWaitlist(c *fiber.Ctx) error {
	return h.shiftWaitlist(c, gorm.Expr("CASE WHEN waitlist > 0 THEN waitlist - 1 ELSE 0 END"))
}

func (h *ProductHandler) shiftWaitlist(c *fiber.Ctx, expr interface{}) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	res := db.Model(&models.Product{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumn("waitlist", expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}

	var waitlist int
	if err := db.Model(&models.Product{}).Where("id = ?", id).
		Select("waitlist").Scan(&waitlist).Error; err != nil {
		return err
	}

	return respond(c, fiber.Map{"product_id": id, "waitlist": waitlist})
}
