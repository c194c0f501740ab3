package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("outcome", validateOutcome)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateOutcome(fl validator.FieldLevel) bool {
	_, err := ledger.ParseOutcome(fl.Field().String())
	return err == nil
}

// FormatValidationError formats validation errors into a field → message map
func FormatValidationError(err error) map[string]string {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"body": "Invalid request format"}
	}

	errs := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errs[field] = "This field is required"
		case "outcome":
			errs[field] = "Must be YES or NO"
		case "required_without":
			errs[field] = fmt.Sprintf("Required unless %s is given", e.Param())
		case "datetime":
			errs[field] = "Must be an RFC3339 time"
		default:
			errs[field] = "Invalid value"
		}
	}
	return errs
}

// decodeAndValidate decodes a JSON body into req and validates it. On error
// the response has already been written and the handler should return.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}, identity, action string) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.Debug(identity, action+"_invalid_body", "error="+err.Error())
		respondWithError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return err
	}
	if err := validate.Struct(req); err != nil {
		logger.Debug(identity, action+"_validation_failed", "error="+err.Error())
		respondJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:  "Invalid request",
			Code:   codeInvalidRequest,
			Fields: FormatValidationError(err),
		})
		return err
	}
	return nil
}
