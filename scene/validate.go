package scene

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("finite", isFinite)
	})
	return validate
}

func isFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// Validate checks that the target is set and every component is finite.
// The first failing field is reported as *InvalidEventError.
func (ev EditEvent) Validate() error {
	field, reason, ok := firstFailure(getValidator().Struct(ev))
	if !ok {
		return nil
	}
	return &InvalidEventError{Field: field, Reason: reason}
}

// Validate checks that the coordinate is finite and lies on the globe.
func (c Coordinate) Validate() error {
	field, reason, ok := firstFailure(getValidator().Struct(c))
	if !ok {
		return nil
	}
	return &InvalidCoordinateError{Field: field, Reason: reason}
}

// firstFailure describes the first field that failed validation. ok is false
// when err is nil.
func firstFailure(err error) (field, reason string, ok bool) {
	if err == nil {
		return "", "", false
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "", err.Error(), true
	}

	fe := fieldErrs[0]
	field = fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field, "is required", true
	case "finite":
		return field, "must be a finite number", true
	case "gte", "lte":
		return field, "must be between " + rangeOf(field), true
	default:
		return field, "failed " + fe.Tag() + " validation", true
	}
}

func rangeOf(field string) string {
	if field == "lat" {
		return "-90 and 90"
	}
	return "-180 and 180"
}
