package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

var (
	inputOnce     sync.Once
	inputValidate *validator.Validate
)

// Struct validates a request input against its `validate` tags and reports failures as a
// *apperrors.ValidationError keyed by JSON field name. Besides the built-in tags it knows
// "metakey" (entity type and field key pattern) and "fieldkind".
func Struct(input any) error {
	err := inputValidator().Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.BadRequest("%v", err)
	}

	out := make([]apperrors.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apperrors.FieldError{
			Path:    fieldPath(fe.Namespace()),
			Kind:    fe.Tag(),
			Message: inputMessage(fe),
		})
	}
	return &apperrors.ValidationError{Fields: out}
}

func inputValidator() *validator.Validate {
	inputOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("metakey", func(fl validator.FieldLevel) bool {
			return metadata.ValidKey(fl.Field().String())
		})
		_ = v.RegisterValidation("fieldkind", func(fl validator.FieldLevel) bool {
			_, err := metadata.ParseKind(fl.Field().String())
			return err == nil
		})
		inputValidate = v
	})
	return inputValidate
}

// fieldPath drops the struct name prefix: "CreateFieldInput.acl.read[0]" -> "acl.read[0]".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func inputMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "metakey":
		return "must match ^[a-z][a-z0-9_]{0,62}$"
	case "fieldkind":
		return "unsupported field kind"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
