package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes gin's binding validator name fields by their json,
// form or uri tag so error details match the request payload.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "form", "uri"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})
}

// IsValidationError reports whether err wraps validator field errors.
func IsValidationError(err error) bool {
	var fields validator.ValidationErrors
	return errors.As(err, &fields)
}

// HandleValidationError writes a 400 listing every rejected field.
func HandleValidationError(c *gin.Context, err error) {
	var fields validator.ValidationErrors
	errors.As(err, &fields)

	details := make([]dto.ValidationDetail, 0, len(fields))
	for _, fe := range fields {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: getValidationMessage(fe)})
	}
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", getRequestID(c), details))
}

// fixedMessages are tags whose message does not depend on the parameter.
var fixedMessages = map[string]string{
	"required": "This field is required",
	"uuid":     "Invalid UUID format",
	"url":      "Invalid URL format",
	"json":     "Must be a valid JSON document",
}

// boundMessages prefix the tag parameter.
var boundMessages = map[string]string{
	"oneof": "Must be one of: ",
	"gt":    "Must be greater than ",
	"gte":   "Must be greater than or equal to ",
	"lt":    "Must be less than ",
	"lte":   "Must be less than or equal to ",
	"min":   "Must be at least ",
	"max":   "Must be at most ",
}

func getValidationMessage(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	prefix, ok := boundMessages[fe.Tag()]
	if !ok {
		return "Invalid value"
	}
	msg := prefix + fe.Param()
	if (fe.Tag() == "min" || fe.Tag() == "max") && fe.Kind() == reflect.String {
		msg += " characters"
	}
	return msg
}
