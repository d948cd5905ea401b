package services

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrCustomerBlocked    = errors.New("customer is blocked")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrOrdersDisabled     = errors.New("ordering is temporarily disabled")
	ErrInsufficientPoints = errors.New("not enough points")
	ErrInvalidPayPoints   = errors.New("pay points must be between zero and the items total")
	ErrInvalidTransition  = errors.New("order status change not allowed")
	ErrInvalidStatus      = errors.New("unknown order status")

	ErrInvalidPhone  = errors.New("invalid phone number")
	ErrOTPCooldown   = errors.New("code was requested too recently")
	ErrOTPNotFound   = errors.New("no active code for this phone")
	ErrOTPExpired    = errors.New("code expired")
	ErrOTPAttempts   = errors.New("too many attempts")
	ErrOTPInvalid    = errors.New("invalid code")
	ErrBadCredential = errors.New("invalid email or password")
	ErrAdminInactive = errors.New("account is disabled")

	ErrInvalidPushToken = errors.New("invalid expo push token")
)

// ProductUnavailableError reports a line whose product is missing or inactive.
type ProductUnavailableError struct {
	ProductID uuid.UUID
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InsufficientStockError reports a line that asks for more than is in stock.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %q: requested %d, available %d", e.Name, e.Requested, e.Available)
}

// MinOrderError reports an order below the configured minimum amount.
type MinOrderError struct {
	Minimum string
}

func (e *MinOrderError) Error() string {
	return "order total is below the minimum of " + e.Minimum
}

// CooldownError reports a code request made before the previous cooldown ran
// out. It matches ErrOTPCooldown.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrOTPCooldown.Error()
	}
	return fmt.Sprintf("%s, retry in %ds", ErrOTPCooldown.Error(), int(e.RetryAfter.Round(time.Second).Seconds()))
}

func (e *CooldownError) Is(target error) bool { return target == ErrOTPCooldown }
