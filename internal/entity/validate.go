package entity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		return IsValidBloodType(fl.Field().String())
	})
	_ = v.RegisterValidation("requestblood", func(fl validator.FieldLevel) bool {
		bt := fl.Field().String()
		return bt == BloodTypeUnknown || IsValidBloodType(bt)
	})

	return v
}

// Validate checks struct tags and reports the first failing field as ErrValidation.
func Validate(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewValidationError(fe.Field(), describeTag(fe))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "bloodtype", "requestblood":
		return "is not a known blood group"
	case "gt", "gte":
		return "must be " + fe.Tag() + " " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
