package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Stable error codes surfaced to callers. Remediation text travels with the code so
// collaborators never have to guess; defaults are never silently substituted.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidEnum         = "INVALID_ENUM"
	CodeNotFound            = "NOT_FOUND"
	CodeSettingsMissing     = "SETTINGS_MISSING"
	CodeBudgetMissing       = "BUDGET_MISSING"
	CodeRecipeMissing       = "RECIPE_MISSING"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeImmutable           = "IMMUTABLE"
)

// AppError is the user-visible failure shape: a stable machine code plus remediation.
type AppError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

func (e *AppError) Error() string {
	if e.Remediation == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Remediation)
}

func NewAppError(code, message, remediation string) *AppError {
	return &AppError{Code: code, Message: message, Remediation: remediation}
}

func ValidationError(message string) *AppError {
	return &AppError{Code: CodeValidationFailed, Message: message}
}

func NotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func ImmutableError(message string) *AppError {
	return &AppError{Code: CodeImmutable, Message: message}
}

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
