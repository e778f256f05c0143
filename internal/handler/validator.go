package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edjs/theatre-booking/internal/model"
)

// RequestValidator plugs go-playground/validator into echo's Validate.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns the validator installed on the echo instance.
// Failing fields are named after their json tag.
func NewValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate checks the validate tags of i. The first failing field comes
// back as a *model.ValidationError.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		fe := errs[0]
		return model.Invalid(fe.Field(), "failed "+fe.Tag()+" check")
	}
	return err
}
