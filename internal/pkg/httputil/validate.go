package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

// campaignCodeRe is the character set allowed in campaign codes. Codes are
// inlined into native SQL against the history table.
var campaignCodeRe = regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so the UI can map errors back onto form inputs.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("campaigncode", func(fl validator.FieldLevel) bool {
		return campaignCodeRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks dst against its `validate` struct tags.
func Validate(dst any) []ValidationError {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return out
}

// Decode reads JSON from the request body into dst and validates it.
// Returns false after writing a 400 response if either step fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ValidationFailed(w, []ValidationError{{Field: "body", Message: "invalid JSON: " + err.Error()}})
		return false
	}
	if errs := Validate(dst); len(errs) > 0 {
		ValidationFailed(w, errs)
		return false
	}
	return true
}

// fieldPath drops the top-level struct name: "CountRequest.filters[0].operator"
// becomes "filters[0].operator".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "campaigncode":
		return "may only contain letters, digits, '.', '_' and '-'"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
