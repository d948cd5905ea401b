package handlers

import (
	"encoding/json"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/utils"
)

const maxImageSize = 8 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ErrorHandler renders every error in the API's JSON envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(fiber.Map{"success": false, "error": message})
	}
}

// serviceError maps domain errors to HTTP errors. Unknown errors pass through
// and end up as 500s.
func serviceError(err error) error {
	var (
		stockErr       *services.InsufficientStockError
		unavailableErr *services.ProductUnavailableError
		minErr         *services.MinOrderError
		validationErr  *services.ValidationError
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &stockErr):
		return fiber.NewError(fiber.StatusConflict, stockErr.Error())
	case errors.As(err, &unavailableErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, unavailableErr.Error())
	case errors.As(err, &minErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, minErr.Error())
	case errors.As(err, &validationErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, validationErr.Error())
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCustomerNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrOrdersDisabled):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInsufficientPoints),
		errors.Is(err, services.ErrInvalidPayPoints):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidPhone),
		errors.Is(err, services.ErrInvalidPushToken),
		errors.Is(err, services.ErrOTPNotFound),
		errors.Is(err, services.ErrOTPExpired),
		errors.Is(err, services.ErrOTPInvalid),
		errors.Is(err, storage.ErrNotImage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrOTPCooldown),
		errors.Is(err, services.ErrOTPAttempts):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrBadCredential):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrCustomerBlocked),
		errors.Is(err, services.ErrAdminInactive):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return err
}

// parseBody decodes the request body (JSON or form) and validates it.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validateStruct(out)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return fiber.NewError(fiber.StatusUnprocessableEntity, msg)
	}
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, what+" not found")
	}
	return err
}

func respond(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func respondCreated(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

func respondList(c *fiber.Ctx, data interface{}, pg utils.Pagination, total int64) error {
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       data,
		"pagination": pg.Meta(total),
	})
}

// flexString accepts both JSON strings and numbers, so admin forms and JSON
// clients can post prices either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

// parseMoney parses a non-negative amount. Empty input is zero.
func parseMoney(field string, raw flexString) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fiber.NewError(fiber.StatusUnprocessableEntity, field+" must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, fiber.NewError(fiber.StatusUnprocessableEntity, field+" must not be negative")
	}
	return d.Round(2), nil
}

func parseOptionalUUID(field, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, field+" must be a uuid")
	}
	return &id, nil
}

// formImage returns the uploaded file for field, or nil when none was sent.
func formImage(c *fiber.Ctx, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	if fh.Size > maxImageSize {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, "image is too large")
	}
	return fh, nil
}
