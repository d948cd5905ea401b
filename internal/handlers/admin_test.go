package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/testutil"
)

func TestSettings_DefaultsAndUpdate(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	code, env := h.json(http.MethodGet, "/api/settings", nil, "")
	require.Equal(t, http.StatusOK, code)

	var settings models.StoreSettings
	env.decode(t, &settings)
	assert.True(t, settings.OrdersEnabled)

	code, _ = h.json(http.MethodPut, "/api/admin/settings", map[string]any{
		"points_percent": 150,
	}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = h.json(http.MethodPut, "/api/admin/settings", map[string]any{
		"delivery_fee": "-1",
	}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = h.json(http.MethodPut, "/api/admin/settings", map[string]any{
		"support_email": "not-an-email",
	}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = h.json(http.MethodPut, "/api/admin/settings", map[string]any{
		"delivery_fee":       "7.5",
		"free_delivery_from": 150,
		"points_percent":     5,
		"points_enabled":     true,
		"orders_enabled":     true,
		"support_email":      "help@example.com",
	}, admin)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = h.json(http.MethodGet, "/api/settings", nil, "")
	require.Equal(t, http.StatusOK, code)
	env.decode(t, &settings)
	assert.True(t, settings.DeliveryFee.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, 5, settings.PointsPercent)
	assert.Equal(t, "help@example.com", settings.SupportEmail)
}

func TestMessages_PublicListHonoursWindow(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	past := time.Now().Add(-48 * time.Hour)
	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)

	for _, body := range []map[string]any{
		{"title": "Expired", "starts_at": past, "ends_at": yesterday},
		{"title": "Running", "starts_at": yesterday, "ends_at": tomorrow},
		{"title": "Always"},
		{"title": "Draft", "is_active": false},
	} {
		code, env := h.json(http.MethodPost, "/api/admin/messages", body, admin)
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	code, _ := h.json(http.MethodPost, "/api/admin/messages", map[string]any{
		"title": "Backwards", "starts_at": tomorrow, "ends_at": yesterday,
	}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env := h.json(http.MethodGet, "/api/messages", nil, "")
	require.Equal(t, http.StatusOK, code)

	var messages []models.MarketingMessage
	env.decode(t, &messages)
	titles := make([]string, len(messages))
	for i, m := range messages {
		titles[i] = m.Title
	}
	assert.ElementsMatch(t, []string{"Running", "Always"}, titles)

	code, env = h.json(http.MethodGet, "/api/admin/messages", nil, admin)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 4, env.Pagination.TotalItems)
}

func TestBanners_RequireImage(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	code, _ := h.multipart(http.MethodPost, "/api/admin/banners", map[string]string{"title": "Sale"}, nil, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env := h.multipart(http.MethodPost, "/api/admin/banners", map[string]string{
		"title": "Sale", "link": "/products?sort=price_asc", "is_active": "true",
	}, pngBytes(t, 120, 40), admin)
	require.Equal(t, http.StatusCreated, code, env.Error)

	var banner models.Banner
	env.decode(t, &banner)
	assert.NotEmpty(t, banner.Image)

	code, env = h.json(http.MethodGet, "/api/banners", nil, "")
	require.Equal(t, http.StatusOK, code)

	var banners []models.Banner
	env.decode(t, &banners)
	require.Len(t, banners, 1)

	code, _ = h.json(http.MethodDelete, "/api/admin/banners/"+banner.ID.String(), nil, admin)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestCustomers_ListStatsAndBlock(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	buyer := testutil.CreateCustomer(t, h.db, "+998902000001", 0)
	testutil.CreateCustomer(t, h.db, "+998902000002", 0)

	for i, sum := range []string{"10.00", "15.50"} {
		require.NoError(t, h.db.Create(&models.Order{
			OrderNumber: "TEST-" + string(rune('A'+i)),
			CustomerID:  buyer.ID,
			Status:      models.OrderFulfilled,
			ItemsTotal:  decimal.RequireFromString(sum),
			DeliveryFee: decimal.Zero,
			Sum:         decimal.RequireFromString(sum),
			Address:     "x",
			PlacedAt:    time.Now(),
		}).Error)
	}
	require.NoError(t, h.db.Create(&models.Order{
		OrderNumber: "TEST-C",
		CustomerID:  buyer.ID,
		Status:      models.OrderCancelled,
		ItemsTotal:  decimal.RequireFromString("99"),
		DeliveryFee: decimal.Zero,
		Sum:         decimal.RequireFromString("99"),
		Address:     "x",
		PlacedAt:    time.Now(),
	}).Error)

	code, env := h.json(http.MethodGet, "/api/admin/customers/"+buyer.ID.String(), nil, admin)
	require.Equal(t, http.StatusOK, code, env.Error)

	var got struct {
		Phone      string          `json:"phone"`
		OrderCount int64           `json:"order_count"`
		TotalSpent decimal.Decimal `json:"total_spent"`
	}
	env.decode(t, &got)
	assert.Equal(t, buyer.Phone, got.Phone)
	assert.EqualValues(t, 2, got.OrderCount)
	assert.True(t, got.TotalSpent.Equal(decimal.RequireFromString("25.50")), got.TotalSpent.String())

	code, env = h.json(http.MethodGet, "/api/admin/customers?search=2000002", nil, admin)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Pagination.TotalItems)

	code, env = h.json(http.MethodPatch, "/api/admin/customers/"+buyer.ID.String()+"/block", map[string]bool{"blocked": true}, admin)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, testutil.Reload(t, h.db, buyer).IsBlocked)

	code, _ = h.json(http.MethodPatch, "/api/admin/customers/"+buyer.ID.String()+"/block", map[string]any{}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestNotifications_RegisterAndBroadcast(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	alice := testutil.CreateCustomer(t, h.db, "+998903000001", 0)
	bob := testutil.CreateCustomer(t, h.db, "+998903000002", 0)
	blocked := testutil.CreateCustomer(t, h.db, "+998903000003", 0)

	code, _ := h.json(http.MethodPut, "/api/me/push-token", map[string]string{"token": "garbage"}, h.customerToken(alice))
	assert.Equal(t, http.StatusBadRequest, code)

	for i, c := range []models.Customer{alice, bob, blocked} {
		token := "ExponentPushToken[device-" + string(rune('a'+i)) + "]"
		code, env := h.json(http.MethodPut, "/api/me/push-token", map[string]string{"token": token}, h.customerToken(c))
		require.Equal(t, http.StatusOK, code, env.Error)
	}
	require.NoError(t, h.db.Model(&blocked).Update("is_blocked", true).Error)

	code, env := h.json(http.MethodPost, "/api/admin/notifications", services.BroadcastInput{
		Title: "Fresh berries",
		Body:  "Strawberries are back in stock",
		Data:  map[string]string{"screen": "catalog"},
	}, admin)
	require.Equal(t, http.StatusCreated, code, env.Error)

	var n models.PushNotification
	env.decode(t, &n)
	assert.Equal(t, models.PushSent, n.Status)
	assert.Equal(t, 2, n.Recipients)
	assert.Equal(t, 2, n.Delivered)
	assert.EqualValues(t, 1, h.expoCalls.Load())

	code, env = h.json(http.MethodGet, "/api/admin/notifications", nil, admin)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Pagination.TotalItems)

	code, _ = h.json(http.MethodPost, "/api/admin/notifications", map[string]string{"title": "no body"}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestDashboard_Summary(t *testing.T) {
	h := newHarness(t)
	testutil.CreateProduct(t, h.db, "Low", "1", 2)
	testutil.CreateCustomer(t, h.db, "+998904000001", 0)

	code, env := h.json(http.MethodGet, "/api/admin/dashboard", nil, h.adminToken())
	require.Equal(t, http.StatusOK, code, env.Error)

	var summary services.Summary
	env.decode(t, &summary)
	assert.EqualValues(t, 1, summary.Customers)
	assert.EqualValues(t, 1, summary.Products)
	assert.EqualValues(t, 1, summary.LowStock)

	code, _ = h.json(http.MethodGet, "/api/admin/dashboard/sales?days=7", nil, h.adminToken())
	assert.Equal(t, http.StatusOK, code)

	code, _ = h.json(http.MethodGet, "/api/admin/dashboard/top-products", nil, h.adminToken())
	assert.Equal(t, http.StatusOK, code)
}
