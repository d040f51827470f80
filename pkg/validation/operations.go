// Package validation performs structural validation of inbound request
// bodies before they reach handler logic. Semantic checks (is this action
// available for this project right now) stay with the action rules.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"frameworks/api_compose/pkg/models"
)

// Project names follow the compose convention: lowercase alphanumerics,
// hyphens and underscores, starting with an alphanumeric.
var projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// RequestValidator performs structural validation for the operations API.
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator constructs a RequestValidator with standard struct validation.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validator: validator.New(),
	}
}

// ValidateOperationRequest checks an action dispatch request body.
func (v *RequestValidator) ValidateOperationRequest(req *models.OperationRequest) error {
	if err := v.validator.Struct(req); err != nil {
		return fmt.Errorf("operation request validation failed: %w", err)
	}
	if strings.TrimSpace(req.Action) == "" {
		return fmt.Errorf("action must not be blank")
	}
	return nil
}

// ValidateStatusUpdate checks an executor callback body.
func (v *RequestValidator) ValidateStatusUpdate(upd *models.OperationStatusUpdate) error {
	if err := v.validator.Struct(upd); err != nil {
		return fmt.Errorf("status update validation failed: %w", err)
	}
	if upd.Status == models.OperationFailed && upd.Error == "" && upd.ExitCode == nil {
		return fmt.Errorf("failed status requires an error message or exit code")
	}
	return nil
}

// ValidateProjectName checks a project name path parameter. Comparison
// elsewhere is case-insensitive, so uppercase input is folded first.
func ValidateProjectName(name string) error {
	folded := strings.ToLower(strings.TrimSpace(name))
	if folded == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if len(folded) > 255 {
		return fmt.Errorf("project name exceeds 255 characters")
	}
	if !projectNamePattern.MatchString(folded) {
		return fmt.Errorf("project name %q contains invalid characters", name)
	}
	return nil
}
