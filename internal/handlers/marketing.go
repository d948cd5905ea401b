package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/utils"
)

// MarketingHandler manages banners and marketing messages.
type MarketingHandler struct {
	db     *gorm.DB
	images *storage.Images
	log    *zap.Logger
	now    func() time.Time
}

// NewMarketingHandler constructs MarketingHandler.
func NewMarketingHandler(db *gorm.DB, images *storage.Images, log *zap.Logger) *MarketingHandler {
	return &MarketingHandler{db: db, images: images, log: log, now: time.Now}
}

// Banners

// ListBanners returns active banners in display order.
func (h *MarketingHandler) ListBanners(c *fiber.Ctx) error {
	var items []models.Banner
	if err := h.db.WithContext(c.UserContext()).Where("is_active = ?", true).
		Order("sort_order asc").Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}
	return respond(c, items)
}

// AdminListBanners returns every banner, paginated.
func (h *MarketingHandler) AdminListBanners(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Banner{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.Banner
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("sort_order asc").Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}
	return respondList(c, items, pg, total)
}

type bannerForm struct {
	Title     string `json:"title" form:"title" validate:"max=200"`
	Link      string `json:"link" form:"link" validate:"omitempty,max=500"`
	SortOrder int    `json:"sort_order" form:"sort_order"`
	IsActive  *bool  `json:"is_active" form:"is_active"`
}

// CreateBanner stores a banner. An image is required.
func (h *MarketingHandler) CreateBanner(c *fiber.Ctx) error {
	var form bannerForm
	if err := parseBody(c, &form); err != nil {
		return err
	}

	image, err := saveFormImage(c, h.images, "banners")
	if err != nil {
		return err
	}
	if image == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "image is required")
	}

	banner := models.Banner{
		Title:     strings.TrimSpace(form.Title),
		Link:      strings.TrimSpace(form.Link),
		Image:     image,
		SortOrder: form.SortOrder,
		IsActive:  form.IsActive == nil || *form.IsActive,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&banner).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}

	return respondCreated(c, banner)
}

// UpdateBanner edits a banner, optionally replacing its image.
func (h *MarketingHandler) UpdateBanner(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var banner models.Banner
	if err := h.db.WithContext(c.UserContext()).First(&banner, "id = ?", id).Error; err != nil {
		return notFound(err, "banner")
	}

	var form bannerForm
	if err := parseBody(c, &form); err != nil {
		return err
	}

	image, err := saveFormImage(c, h.images, "banners")
	if err != nil {
		return err
	}

	oldImage := banner.Image
	banner.Title = strings.TrimSpace(form.Title)
	banner.Link = strings.TrimSpace(form.Link)
	banner.SortOrder = form.SortOrder
	if form.IsActive != nil {
		banner.IsActive = *form.IsActive
	}
	if image != "" {
		banner.Image = image
	}

	if err := h.db.WithContext(c.UserContext()).Save(&banner).Error; err != nil {
		removeImage(c.UserContext(), h.images, h.log, image)
		return err
	}
	if image != "" {
		removeImage(c.UserContext(), h.images, h.log, oldImage)
	}

	return respond(c, banner)
}

// DeleteBanner removes a banner and its image.
func (h *MarketingHandler) DeleteBanner(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var banner models.Banner
	if err := h.db.WithContext(c.UserContext()).First(&banner, "id = ?", id).Error; err != nil {
		return notFound(err, "banner")
	}
	if err := h.db.WithContext(c.UserContext()).Delete(&banner).Error; err != nil {
		return err
	}

	removeImage(c.UserContext(), h.images, h.log, banner.Image)
	return c.SendStatus(fiber.StatusNoContent)
}

// Marketing messages

// ListMessages returns messages that are active and inside their window.
func (h *MarketingHandler) ListMessages(c *fiber.Ctx) error {
	var items []models.MarketingMessage
	if err := h.db.WithContext(c.UserContext()).Where("is_active = ?", true).
		Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}

	now := h.now()
	visible := make([]models.MarketingMessage, 0, len(items))
	for _, m := range items {
		if m.VisibleAt(now) {
			visible = append(visible, m)
		}
	}
	return respond(c, visible)
}

// AdminListMessages returns every message, paginated.
func (h *MarketingHandler) AdminListMessages(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.MarketingMessage{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.MarketingMessage
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}
	return respondList(c, items, pg, total)
}

type messageRequest struct {
	Title    string     `json:"title" form:"title" validate:"required,max=200"`
	Body     string     `json:"body" form:"body" validate:"max=2000"`
	IsActive *bool      `json:"is_active" form:"is_active"`
	StartsAt *time.Time `json:"starts_at" form:"-"`
	EndsAt   *time.Time `json:"ends_at" form:"-"`
}

func (r messageRequest) apply(m *models.MarketingMessage) error {
	if r.StartsAt != nil && r.EndsAt != nil && r.EndsAt.Before(*r.StartsAt) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "ends_at must be after starts_at")
	}
	m.Title = strings.TrimSpace(r.Title)
	m.Body = strings.TrimSpace(r.Body)
	m.StartsAt = r.StartsAt
	m.EndsAt = r.EndsAt
	if r.IsActive != nil {
		m.IsActive = *r.IsActive
	}
	return nil
}

// CreateMessage stores a marketing message.
func (h *MarketingHandler) CreateMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	message := models.MarketingMessage{IsActive: true}
	if err := req.apply(&message); err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Create(&message).Error; err != nil {
		return err
	}

	return respondCreated(c, message)
}

// UpdateMessage edits a marketing message.
func (h *MarketingHandler) UpdateMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var message models.MarketingMessage
	if err := h.db.WithContext(c.UserContext()).First(&message, "id = ?", id).Error; err != nil {
		return notFound(err, "message")
	}

	var req messageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := req.apply(&message); err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Save(&message).Error; err != nil {
		return err
	}

	return respond(c, message)
}

// DeleteMessage removes a marketing message.
func (h *MarketingHandler) DeleteMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	res := h.db.WithContext(c.UserContext()).Delete(&models.MarketingMessage{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "message not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
