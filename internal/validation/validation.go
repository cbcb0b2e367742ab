package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is a user-correctable problem scoped to one input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors collects every failing field check of one request.
type Errors struct {
	Fields []FieldError
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Code)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *Errors) Add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

// Has reports whether a field error with code was recorded.
func (e *Errors) Has(code string) bool {
	for _, f := range e.Fields {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Err returns nil when nothing was recorded.
func (e *Errors) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Single builds an error holding one field error.
func Single(field, code, message string) *Errors {
	return &Errors{Fields: []FieldError{{Field: field, Code: code, Message: message}}}
}

// As extracts validation errors from err.
func As(err error) (*Errors, bool) {
	var ve *Errors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct runs `validate` tags on s and converts failures to field errors.
func Struct(s any) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Errors{}
	for _, fe := range verrs {
		code, msg := describe(fe)
		out.Add(fe.Field(), code, msg)
	}
	return out
}

func describe(fe validator.FieldError) (code, message string) {
	switch fe.Tag() {
	case "required":
		return "required", "this field is required"
	case "email":
		return "invalid_email", "enter a valid email address"
	case "max":
		return "too_long", "must be at most " + fe.Param() + " characters"
	case "min":
		return "too_short", "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "invalid_choice", "must be one of: " + fe.Param()
	case "eqfield":
		return "mismatch", "must match " + strings.ToLower(fe.Param())
	case "gt":
		return "invalid", "must be greater than " + fe.Param()
	default:
		return "invalid", "invalid value"
	}
}
