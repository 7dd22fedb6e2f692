// Package validate runs go-playground/validator rules and reports failures as
// apperr validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"appsync/pkg/apperr"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct checks the `validate` tags of s.
func Struct(s any) error {
	return translate("", v.Struct(s))
}

// Var checks a single value against tag, naming it field in the error.
func Var(field string, value any, tag string) error {
	return translate(field, v.Var(value, tag))
}

func translate(field string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindInternal, "validation failed", err)
	}
	fe := verrs[0]
	name := fe.Field()
	if name == "" {
		name = field
	}
	return apperr.Validation(message(name, fe))
}

func message(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " is invalid"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}
