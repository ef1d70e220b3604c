package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
//
// Besides the built-in tags it understands "password" (the account password
// policy) and "role" (one of the fixed roles).
func NewValidator() *echoValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return domain.ValidatePassword(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return domain.Role(strings.ToLower(fl.Field().String())).Valid()
	})
	return &echoValidator{v: v}
}

// Validate satisfies the echo.Validator interface. Failures are Validation
// errors whose message lists every offending field.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return domain.E(domain.KindValidation, strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// jsonName reports fields by their JSON name so messages match the payload.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "uuid":
		return field + " must be a valid UUID"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "password":
		return field + " must be at least 8 characters and contain an uppercase letter, a lowercase letter, a number and a special character"
	case "role":
		return field + " must be one of: admin, moderator, user"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
