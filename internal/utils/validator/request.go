package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// ErrInvalidRequest is wrapped by every RequestError.
var ErrInvalidRequest = errors.New("invalid request")

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RequestError lists every problem found in a request.
type RequestError struct {
	Errors []ValidationError
}

func (e *RequestError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

// ValidateExtractionRequest rejects requests no stage could work on.
func ValidateExtractionRequest(req *models.ExtractionRequest) error {
	if req == nil {
		return &RequestError{Errors: []ValidationError{{Code: "EMPTY_REQUEST", Message: "request is required"}}}
	}

	var errs []ValidationError
	if strings.TrimSpace(req.Text) == "" {
		errs = append(errs, ValidationError{Code: "EMPTY_TEXT", Message: "text is required", Field: "text"})
	}
	if len(req.Schema) == 0 {
		errs = append(errs, ValidationError{Code: "EMPTY_SCHEMA", Message: "schema must have at least one field", Field: "schema"})
	}
	for name := range req.Schema {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{Code: "BLANK_FIELD", Message: "schema field names must not be blank", Field: "schema"})
			break
		}
	}
	if t := req.Options.ThresholdOverride; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, ValidationError{
			Code:    "INVALID_THRESHOLD",
			Message: fmt.Sprintf("confidence threshold %.2f is outside [0,1]", *t),
			Field:   "options.confidenceThreshold",
		})
	}

	if len(errs) > 0 {
		return &RequestError{Errors: errs}
	}
	return nil
}

// ValidateLabelRequest checks a standalone label detection request.
func ValidateLabelRequest(schema models.Schema, text string) error {
	return ValidateExtractionRequest(&models.ExtractionRequest{Schema: schema, Text: text})
}
