package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "licensegate/internal/errors"
)

const defaultMaxBodySize = 1 << 20

// Validator decodes JSON request bodies and checks them against their
// validate struct tags.
type Validator struct {
	validate    *validator.Validate
	maxBodySize int64
}

// NewValidator creates a validator that reports fields by their JSON names
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v, maxBodySize: defaultMaxBodySize}
}

// Bind decodes the body of r into dst and validates it. Failures are
// APIErrors ready for the error handler.
func (v *Validator) Bind(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, v.maxBodySize)
	if err := render.DecodeJSON(body, dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewAPIError(http.StatusBadRequest, "INVALID_REQUEST", "request body is empty")
		}
		return apperrors.InvalidRequestWithError(err)
	}
	return v.ValidateStruct(dst)
}

// ValidateStruct checks s and converts failures to a VALIDATION_FAILED error
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.InvalidRequestWithError(err)
	}
	out := make([]apperrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apperrors.ErrValidation(out...)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// QueryInt reads an integer query parameter within [min, max], falling back to
// def when absent.
func QueryInt(r *http.Request, param string, min, max, def int) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, apperrors.NewAPIErrorWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
			fmt.Sprintf("%s must be an integer between %d and %d", param, min, max), param)
	}
	return n, nil
}

// QueryEnum reads a query parameter restricted to allowed values, falling back
// to def when absent.
func QueryEnum(r *http.Request, param string, allowed []string, def string) (string, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	return "", apperrors.NewAPIErrorWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", ")), param)
}
