package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation failed")
)

// Pipeline error taxonomy. Concrete error types in each package unwrap to one of these.
var (
	ErrRender            = errors.New("render error")
	ErrNormalization     = errors.New("annotation rejected")
	ErrPartition         = errors.New("partition error")
	ErrTransientService  = errors.New("transient service error")
	ErrPermanentService  = errors.New("permanent service error")
	ErrCacheInconsistent = errors.New("cache inconsistent")
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsStructural reports whether err should abort a whole run rather than a single item.
func IsStructural(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == "CONFIG_ERROR" {
		return true
	}
	return errors.Is(err, ErrPartition) || errors.Is(err, ErrCheckpointCorrupt)
}
