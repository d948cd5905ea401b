package handlers_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/config"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/routes"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/testutil"
	"github.com/example/freshcart/internal/utils"
)

const testSecret = "test-secret"

type harness struct {
	t   *testing.T
	db  *gorm.DB
	cfg *config.Config
	app *fiber.App

	expoCalls atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	log := zap.NewNop()
	cfg := &config.Config{
		AppEnv:            "test",
		JWTSecret:         testSecret,
		TokenExpires:      time.Hour,
		AdminTokenExpires: time.Hour,
		StorageDisk:       "local",
		UploadDir:         t.TempDir(),
		PublicBaseURL:     "http://localhost:8080",
		ImageMaxWidth:     64,
		OTPTTL:            5 * time.Minute,
		OTPCooldown:       time.Minute,
		OTPMaxAttempts:    3,
		CORSOrigins:       "*",
	}

	h := &harness{t: t, db: db, cfg: cfg}

	expo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.expoCalls.Add(1)
		var msgs []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&msgs)
		tickets := make([]map[string]any, len(msgs))
		for i := range msgs {
			tickets[i] = map[string]any{"status": "ok", "id": uuid.NewString()}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
	}))
	t.Cleanup(expo.Close)

	disk, err := storage.NewLocal(cfg.UploadDir, cfg.PublicBaseURL+"/uploads")
	require.NoError(t, err)

	store := cache.New(nil, "")
	settings := services.NewSettingsService(db, store, log)
	push := services.NewPushService(db, expo.URL, "", log)
	sms := services.NewSMSService(services.SMSConfig{}, log)

	h.app = routes.NewApp(routes.Dependencies{
		DB:       db,
		Config:   cfg,
		Log:      log,
		Images:   storage.NewImages(disk, cfg.ImageMaxWidth),
		Settings: settings,
		Push:     push,
		Auth: services.NewAuthService(db, store, sms, services.AuthConfig{
			JWTSecret:      cfg.JWTSecret,
			TokenTTL:       cfg.TokenExpires,
			AdminTokenTTL:  cfg.AdminTokenExpires,
			OTPTTL:         cfg.OTPTTL,
			OTPCooldown:    cfg.OTPCooldown,
			OTPMaxAttempts: cfg.OTPMaxAttempts,
		}, log),
		Orders:    services.NewOrderService(db, settings, nil, nil, log),
		Analytics: services.NewAnalyticsService(db, store, log),
	})

	return h
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination struct {
		CurrentPage  int   `json:"current_page"`
		ItemsPerPage int   `json:"items_per_page"`
		TotalItems   int64 `json:"total_items"`
		TotalPages   int64 `json:"total_pages"`
	} `json:"pagination"`
}

func (e envelope) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, dst))
}

func (h *harness) send(req *http.Request, token string) (int, envelope) {
	h.t.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)

	var env envelope
	if len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (h *harness) json(method, path string, body any, token string) (int, envelope) {
	h.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(req, token)
}

// multipart posts fields and an optional image file named "image".
func (h *harness) multipart(method, path string, fields map[string]string, file []byte, token string) (int, envelope) {
	h.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(h.t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("image", "upload.png")
		require.NoError(h.t, err)
		_, err = fw.Write(file)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return h.send(req, token)
}

func (h *harness) customerToken(c models.Customer) string {
	h.t.Helper()
	token, err := utils.GenerateToken(testSecret, c.ID, utils.RoleCustomer, time.Hour)
	require.NoError(h.t, err)
	return token
}

func (h *harness) adminToken() string {
	h.t.Helper()

	hash, err := utils.HashPassword("admin-pass-1")
	require.NoError(h.t, err)
	admin := models.AdminUser{Email: uuid.NewString() + "@example.com", Name: "Ops", PasswordHash: hash, IsActive: true}
	require.NoError(h.t, h.db.Create(&admin).Error)

	token, err := utils.GenerateToken(testSecret, admin.ID, utils.RoleAdmin, time.Hour)
	require.NoError(h.t, err)
	return token
}

func pngBytes(t *testing.T, w, hgt int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, hgt))
	for x := 0; x < w; x++ {
		for y := 0; y < hgt; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x), B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
