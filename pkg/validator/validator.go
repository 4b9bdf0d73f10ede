package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidate()

// newValidate names fields after their json tag, falling back to form, so
// error keys match what the client sent.
func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range [...]string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			switch name {
			case "":
				continue
			case "-":
				return ""
			default:
				return name
			}
		}
		return f.Name
	})
	return v
}

// Validate checks s against its validate tags. Rule violations come back as
// *ValidationError.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// ValidationError lists every rule a struct broke.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("field '%s' %s", fe.Field(), describe(fe))
	}
	return strings.Join(parts, "; ")
}

// Fields maps each failing field to a readable message.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field()] = describe(fe)
	}
	return out
}

// tagMessages holds one format per tag; %[1]s is the tag parameter.
var tagMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"uuid":     "must be a valid UUID",
	"url":      "must be a valid URL",
	"min":      "must be at least %[1]s characters",
	"max":      "must be at most %[1]s characters",
	"gte":      "must be greater than or equal to %[1]s",
	"lte":      "must be less than or equal to %[1]s",
	"oneof":    "must be one of: %[1]s",
	"nefield":  "must differ from %[1]s",
	"eqfield":  "must match %[1]s",
}

func describe(fe validator.FieldError) string {
	format, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	if !strings.Contains(format, "%[1]s") {
		return format
	}
	return fmt.Sprintf(format, fe.Param())
}

// DecodeAndValidate decodes one JSON object from r into dst and validates
// it. Bodies over 1 MiB and unknown keys are rejected.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
