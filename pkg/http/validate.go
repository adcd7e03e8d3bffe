package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError is one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_GTE"`
	Field   string                 `json:"field,omitempty" example:"principal"`
	Message string                 `json:"message,omitempty" example:"principal must not be negative"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReadAndValidateRequest binds the body into req, fills defaults and validates.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	return ValidateRequest(c.Request().Context(), req)
}

// ValidateRequest fills defaults on an already decoded req and validates it.
// Pointer fields with a default tag are only filled when nil.
func ValidateRequest(ctx context.Context, req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(ctx, req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: CodeBadRequest, Message: msg}}
}

func fieldMessage(fe validator.FieldError) string {
	field, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(p, " ", ", "))
	case "gte":
		if p == "0" {
			return field + " must not be negative"
		}
		return fmt.Sprintf("%s must be at least %s", field, p)
	case "gt":
		if p == "0" {
			return field + " must be positive"
		}
		return fmt.Sprintf("%s must be greater than %s", field, p)
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, p)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, p)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s values", field, p)
		}
		return fmt.Sprintf("%s must be at least %s", field, p)
	case "len":
		return fmt.Sprintf("%s must have length %s", field, p)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	p := fe.Param()
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": p}
	case "max", "lte":
		return map[string]interface{}{"max": p}
	case "gt", "lt", "len":
		return map[string]interface{}{"value": p}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(p)}
	}
	return nil
}
