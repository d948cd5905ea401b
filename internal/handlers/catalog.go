package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/middleware"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/utils"
)

// CatalogHandler manages categories.
type CatalogHandler struct {
	db     *gorm.DB
	images *storage.Images
	log    *zap.Logger
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(db *gorm.DB, images *storage.Images, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{db: db, images: images, log: log}
}

// ListCategories returns active categories in display order.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	return h.listCategories(c, true)
}

// AdminListCategories returns every category, including hidden ones.
func (h *CatalogHandler) AdminListCategories(c *fiber.Ctx) error {
	return h.listCategories(c, false)
}

func (h *CatalogHandler) listCategories(c *fiber.Ctx, activeOnly bool) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Category{})

	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var categories []models.Category
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("sort_order asc").Order("name asc").
		Find(&categories).Error; err != nil {
		return err
	}

	return respondList(c, categories, pg, total)
}

// GetCategory returns a single active category by ID.
func (h *CatalogHandler) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	query := h.db.WithContext(c.UserContext())
	if !isAdmin(c) {
		query = query.Where("is_active = ?", true)
	}

	var category models.Category
	if err := query.First(&category, "id = ?", id).Error; err != nil {
		return notFound(err, "category")
	}

	return respond(c, category)
}

type categoryForm struct {
	Name      string `json:"name" form:"name" validate:"required,max=120"`
	SortOrder int    `json:"sort_order" form:"sort_order"`
	IsActive  *bool  `json:"is_active" form:"is_active"`
}

// CreateCategory persists a new category from a multipart form.
func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var form categoryForm
	if err := parseBody(c, &form); err != nil {
		return err
	}

	category := models.Category{
		Name:      strings.TrimSpace(form.Name),
		SortOrder: form.SortOrder,
		IsActive:  form.IsActive == nil || *form.IsActive,
	}

	image, err := saveFormImage(c, h.images, "categories")
	if err != nil {
		return err
	}
	category.Image = image

	if err := h.db.WithContext(c.UserContext()).Create(&category).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}

	return respondCreated(c, category)
}

// UpdateCategory updates an existing category. A new image replaces the old
// file.
func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.db.WithContext(c.UserContext()).First(&category, "id = ?", id).Error; err != nil {
		return notFound(err, "category")
	}

	var form categoryForm
	if err := parseBody(c, &form); err != nil {
		return err
	}

	image, err := saveFormImage(c, h.images, "categories")
	if err != nil {
		return err
	}

	oldImage := category.Image
	category.Name = strings.TrimSpace(form.Name)
	category.SortOrder = form.SortOrder
	if form.IsActive != nil {
		category.IsActive = *form.IsActive
	}
	if image != "" {
		category.Image = image
	}

	if err := h.db.WithContext(c.UserContext()).Save(&category).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}
	if image != "" {
		removeImage(c.UserContext(), h.images, h.log, oldImage)
	}

	return respond(c, category)
}

// DeleteCategory removes a category. Its products stay, uncategorised.
func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.db.WithContext(c.UserContext()).First(&category, "id = ?", id).Error; err != nil {
		return notFound(err, "category")
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).
			UpdateColumn("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		return err
	}

	removeImage(c.UserContext(), h.images, h.log, category.Image)
	return c.SendStatus(fiber.StatusNoContent)
}

// saveFormImage stores the "image" upload under dir and returns its URL, or
// "" when the form carried no file.
func saveFormImage(c *fiber.Ctx, images *storage.Images, dir string) (string, error) {
	fh, err := formImage(c, "image")
	if err != nil || fh == nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "cannot read image")
	}
	defer f.Close()

	url, err := images.Save(c.UserContext(), dir, f)
	if err != nil {
		return "", serviceError(err)
	}
	return url, nil
}

// removeImage deletes a stored file. Failures are logged, not returned.
func removeImage(ctx context.Context, images *storage.Images, log *zap.Logger, url string) {
	if url == "" {
		return
	}
	if err := images.Remove(ctx, url); err != nil {
		log.Warn("remove image", zap.String("url", url), zap.Error(err))
	}
}

// isAdmin reports whether the request was authenticated as an admin. Public
// routes carry no role.
func isAdmin(c *fiber.Ctx) bool {
	return middleware.GetCurrentRole(c) == utils.RoleAdmin
}
