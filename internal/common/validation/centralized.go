// Package validation wraps go-playground/validator with the custom tags used by
// the admin API payloads and the process configuration.
package validation

import (
	"fmt"
	"net/netip"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"traffic-router/internal/common/errors"
)

// CentralizedValidator provides unified validation using go-playground/validator
type CentralizedValidator struct {
	validator *validator.Validate
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// NewCentralizedValidator creates a new centralized validator instance
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()

	registerRouterValidators(v)

	// Report JSON names so errors line up with the payload the caller sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates a struct using struct tags
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateVar validates a single variable with validation rules
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// Fields returns the individual field failures of s, or nil when s is valid
func (cv *CentralizedValidator) Fields(s interface{}) []ValidationError {
	if err := cv.validator.Struct(s); err != nil {
		return cv.extractValidationErrors(err)
	}
	return nil
}

func (cv *CentralizedValidator) formatValidationErrors(err error) error {
	validationErrors := cv.extractValidationErrors(err)
	if len(validationErrors) == 1 {
		return errors.ValidationError(validationErrors[0].Message).
			WithContext("fields", validationErrors)
	}

	messages := make([]string, len(validationErrors))
	for i, e := range validationErrors {
		messages[i] = e.Message
	}

	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))).
		WithContext("fields", validationErrors)
}

func (cv *CentralizedValidator) extractValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldPath(fieldError),
				Tag:     fieldError.Tag(),
				Value:   fmt.Sprintf("%v", fieldError.Value()),
				Message: formatFieldError(fieldError),
				Param:   fieldError.Param(),
			})
		}
	} else {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "unknown",
			Tag:     "error",
			Message: err.Error(),
		})
	}

	return validationErrors
}

// fieldPath drops the root type name from the namespace ("RouteRule.action.target" -> "action.target")
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(err validator.FieldError) string {
	field := fieldPath(err)
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, err.Param())
	case "redirect_status":
		return fmt.Sprintf("field '%s' must be a redirect status (301, 302, 303, 307, 308)", field)
	case "country_code":
		return fmt.Sprintf("field '%s' must be a two-letter country code", field)
	case "ip_or_cidr":
		return fmt.Sprintf("field '%s' must be an IP address or CIDR prefix", field)
	case "cron_expression":
		return fmt.Sprintf("field '%s' must be a valid cron expression", field)
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", field, err.Tag())
	}
}

func registerRouterValidators(v *validator.Validate) {
	v.RegisterValidation("redirect_status", func(fl validator.FieldLevel) bool {
		switch fl.Field().Int() {
		case 0, 301, 302, 303, 307, 308:
			return true
		}
		return false
	})

	v.RegisterValidation("country_code", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) != 2 {
			return false
		}
		for _, r := range code {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				return false
			}
		}
		return true
	})

	v.RegisterValidation("ip_or_cidr", func(fl validator.FieldLevel) bool {
		value := strings.TrimSpace(fl.Field().String())
		if _, err := netip.ParseAddr(value); err == nil {
			return true
		}
		_, err := netip.ParsePrefix(value)
		return err == nil
	})

	// Standard five-field expression plus descriptors such as @daily
	v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
}

var (
	defaultValidator *CentralizedValidator
	defaultOnce      sync.Once
)

// Default returns the process-wide validator
func Default() *CentralizedValidator {
	defaultOnce.Do(func() {
		defaultValidator = NewCentralizedValidator()
	})
	return defaultValidator
}

// ValidateStruct validates s with the process-wide validator
func ValidateStruct(s interface{}) error {
	return Default().ValidateStruct(s)
}
