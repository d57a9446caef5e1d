package app

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"medstat/internal/errors"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns the request validator shared by the API, batch and
// CLI paths. Field names in failures are the JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// binary accepts 0 and 1 only
	_ = v.RegisterValidation("binary", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := fl.Field().Int()
			return n == 0 || n == 1
		}
		return false
	})
	return v
}

// validationError turns validator failures into a VALIDATION_ERROR
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.WithCode(errors.CodeValidationError, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.ValidationError(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// drop the request type name, keep the JSON path
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "binary":
		return fmt.Sprintf("%s must be binary (0/1)", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be < %s", field, fe.Param())
	case "required_with":
		return fmt.Sprintf("%s is required together with %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
