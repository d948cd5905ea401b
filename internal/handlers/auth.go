package handlers

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/middleware"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/services"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db   *gorm.DB
	auth *services.AuthService
	// exposeCode returns OTP codes in responses outside production.
	exposeCode bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, auth *services.AuthService, exposeCode bool) *AuthHandler {
	return &AuthHandler{db: db, auth: auth, exposeCode: exposeCode}
}

type otpRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

// RequestOTP sends a one-time login code to a phone number.
func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	otp, err := h.auth.RequestOTP(c.UserContext(), req.Phone)
	if err != nil {
		var cooldown *services.CooldownError
		if errors.As(err, &cooldown) && cooldown.RetryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(cooldown.RetryAfter.Round(time.Second).Seconds())))
		}
		return serviceError(err)
	}

	data := fiber.Map{
		"phone":      otp.Phone,
		"expires_at": otp.ExpiresAt.Format(time.RFC3339),
	}
	if h.exposeCode {
		data["code"] = otp.Code
	}

	return c.JSON(fiber.Map{"success": true, "message": "code sent", "data": data})
}

type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
	Code  string `json:"code" validate:"required,numeric,len=6"`
	Name  string `json:"name" validate:"max=120"`
}

// VerifyOTP exchanges a valid code for a customer token, signing the customer
// up on first login.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	session, err := h.auth.VerifyOTP(c.UserContext(), req.Phone, req.Code, req.Name)
	if err != nil {
		return serviceError(err)
	}

	status := fiber.StatusOK
	if session.Created {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token":    session.Token,
			"customer": session.Customer,
			"created":  session.Created,
		},
	})
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLogin authenticates a dashboard user.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req adminLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	session, err := h.auth.AdminLogin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return serviceError(err)
	}

	return respond(c, fiber.Map{"token": session.Token, "admin": session.Admin})
}

// AdminMe returns the authenticated dashboard user.
func (h *AuthHandler) AdminMe(c *fiber.Ctx) error {
	adminID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var admin models.AdminUser
	if err := h.db.WithContext(c.UserContext()).First(&admin, "id = ?", adminID).Error; err != nil {
		return notFound(err, "admin")
	}

	return respond(c, admin)
}
