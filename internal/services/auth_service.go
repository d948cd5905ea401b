package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/metrics"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/utils"
)

const otpDigits = 6

// AuthConfig holds token and one-time code settings.
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AdminTokenTTL  time.Duration
	OTPTTL         time.Duration
	OTPCooldown    time.Duration
	OTPMaxAttempts int
}

// SMSSender delivers text messages.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// AuthService signs customers in with phone codes and admins with passwords.
type AuthService struct {
	db    *gorm.DB
	cache *cache.Store
	sms   SMSSender
	cfg   AuthConfig
	log   *zap.Logger
	now   func() time.Time
}

// NewAuthService constructs AuthService.
func NewAuthService(db *gorm.DB, store *cache.Store, sms SMSSender, cfg AuthConfig, log *zap.Logger) *AuthService {
	return &AuthService{db: db, cache: store, sms: sms, cfg: cfg, log: log, now: time.Now}
}

// OTPRequest is the result of issuing a code.
type OTPRequest struct {
	Phone     string
	Code      string
	ExpiresAt time.Time
}

// RequestOTP issues a fresh code for phone and sends it by SMS.
func (s *AuthService) RequestOTP(ctx context.Context, rawPhone string) (*OTPRequest, error) {
	phone := utils.NormalizePhone(rawPhone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	cooldownKey := "otp:cooldown:" + phone
	if s.cfg.OTPCooldown > 0 {
		ok, err := s.cache.Acquire(ctx, cooldownKey, s.cfg.OTPCooldown)
		if err != nil {
			s.log.Warn("otp cooldown check failed", zap.Error(err))
		} else if !ok {
			return nil, &CooldownError{RetryAfter: s.cache.TTL(ctx, cooldownKey)}
		}
	}

	otp, err := s.issueOTP(ctx, phone)
	if err != nil {
		if delErr := s.cache.Del(ctx, cooldownKey); delErr != nil {
			s.log.Warn("release otp cooldown", zap.String("phone", phone), zap.Error(delErr))
		}
		return nil, err
	}

	metrics.OTPSent.Inc()
	return &OTPRequest{Phone: phone, Code: otp.Code, ExpiresAt: otp.ExpiresAt}, nil
}

// issueOTP replaces the active codes for phone with a new one. The SMS goes
// out inside the transaction, so a failed send keeps the earlier codes usable.
func (s *AuthService) issueOTP(ctx context.Context, phone string) (*models.OTPCode, error) {
	code, err := utils.GenerateNumericCode(otpDigits)
	if err != nil {
		return nil, errors.Wrap(err, "generate code")
	}

	now := s.now()
	otp := models.OTPCode{
		Phone:     phone,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OTPCode{}).
			Where("phone = ? AND used_at IS NULL", phone).
			Update("used_at", now).Error; err != nil {
			return errors.Wrap(err, "store code")
		}
		if err := tx.Create(&otp).Error; err != nil {
			return errors.Wrap(err, "store code")
		}

		message := fmt.Sprintf("Your verification code: %s. It expires in %d minutes.", code, int(s.cfg.OTPTTL.Minutes()))
		if err := s.sms.Send(ctx, phone, message); err != nil {
			s.log.Error("send otp sms", zap.String("phone", phone), zap.Error(err))
			return errors.Wrap(err, "send sms")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// Session is an issued access token and its subject.
type Session struct {
	Token    string
	Customer *models.Customer
	Admin    *models.AdminUser
	Created  bool
}

// VerifyOTP checks the newest active code for phone. On success the customer
// is created when unknown, and a customer token is issued.
func (s *AuthService) VerifyOTP(ctx context.Context, rawPhone, code, name string) (*Session, error) {
	phone := utils.NormalizePhone(rawPhone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	db := s.db.WithContext(ctx)

	var otp models.OTPCode
	if err := db.Where("phone = ? AND used_at IS NULL", phone).
		Order("created_at desc").
		First(&otp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	now := s.now()
	if now.After(otp.ExpiresAt) {
		return nil, ErrOTPExpired
	}
	if otp.Attempts >= s.cfg.OTPMaxAttempts {
		return nil, ErrOTPAttempts
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(strings.TrimSpace(code))) != 1 {
		if err := db.Model(&models.OTPCode{}).
			Where("id = ?", otp.ID).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return nil, err
		}
		return nil, ErrOTPInvalid
	}

	session := &Session{}
	var customer models.Customer
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OTPCode{}).
			Where("id = ? AND used_at IS NULL", otp.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOTPNotFound
		}

		err := tx.Where("phone = ?", phone).First(&customer).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			customer = models.Customer{Phone: phone, Name: strings.TrimSpace(name)}
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
			session.Created = true
		case err != nil:
			return err
		}

		if customer.IsBlocked {
			return ErrCustomerBlocked
		}

		updates := map[string]any{"last_login_at": now}
		if customer.Name == "" && strings.TrimSpace(name) != "" {
			updates["name"] = strings.TrimSpace(name)
		}
		if err := tx.Model(&customer).Updates(updates).Error; err != nil {
			return err
		}
		customer.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := utils.GenerateToken(s.cfg.JWTSecret, customer.ID, utils.RoleCustomer, s.cfg.TokenTTL)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	session.Token = token
	session.Customer = &customer
	return session, nil
}

// AdminLogin checks email and password and issues an admin token.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*Session, error) {
	var admin models.AdminUser
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBadCredential
		}
		return nil, err
	}

	if !utils.CheckPassword(admin.PasswordHash, password) {
		return nil, ErrBadCredential
	}
	if !admin.IsActive {
		return nil, ErrAdminInactive
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&admin).Update("last_login_at", now).Error; err != nil {
		return nil, err
	}
	admin.LastLoginAt = &now

	token, err := utils.GenerateToken(s.cfg.JWTSecret, admin.ID, utils.RoleAdmin, s.cfg.AdminTokenTTL)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	return &Session{Token: token, Admin: &admin}, nil
}

// UpsertAdmin creates an admin account or resets the password of an existing one.
func (s *AuthService) UpsertAdmin(ctx context.Context, email, name, password string) (*models.AdminUser, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return nil, false, &ValidationError{Field: "password", Message: "email is required and password must be at least 8 characters"}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, false, errors.Wrap(err, "hash password")
	}

	var admin models.AdminUser
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&admin).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			admin = models.AdminUser{Email: email}
		case err != nil:
			return err
		}

		if name != "" {
			admin.Name = name
		}
		admin.PasswordHash = hash
		admin.IsActive = true
		return tx.Save(&admin).Error
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "save admin")
	}

	return &admin, created, nil
}
