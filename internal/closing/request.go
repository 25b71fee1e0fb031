package closing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks the structure of the request. It never touches a backend.
func (r *ExecutionRequest) Validate() error {
	var fields []FieldError
	if err := validate.Struct(r); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}

	scope := r.DeriveScope()
	if r.CPF != "" && scope.All {
		fields = append(fields, FieldError{
			Field:   "cpf",
			Message: "a specific company is required to process a single CPF",
		})
	}

	if len(fields) > 0 {
		return &RequestShapeError{Fields: fields}
	}
	return nil
}

// Validate checks the filter. Month and Year must be given together.
func (f *ProcessFilter) Validate() error {
	var fields []FieldError
	if err := validate.Struct(f); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}
	if (f.Month == 0) != (f.Year == 0) {
		fields = append(fields, FieldError{Field: "month", Message: "month and year must be given together"})
	}
	if len(fields) > 0 {
		return &RequestShapeError{Fields: fields}
	}
	return nil
}

// Period returns the filter's period, or nil when none was requested.
func (f *ProcessFilter) Period() *Period {
	if f.Month == 0 || f.Year == 0 {
		return nil
	}
	return &Period{Month: f.Month, Year: f.Year}
}

// Validate checks the filter.
func (f *HistoryFilter) Validate() error {
	if err := validate.Struct(f); err != nil {
		return &RequestShapeError{Fields: fieldErrors(err)}
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "(root)", Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "numeric":
		return "must contain digits only"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
