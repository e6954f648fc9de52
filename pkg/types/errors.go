package types

import (
	"errors"
	"fmt"
)

var (
	ErrApplicationNotFound = errors.New("application not found")

	ErrValidation            = errors.New("validation failed")
	ErrUnauthorizedActor     = errors.New("actor is not permitted to act on this application")
	ErrRejectionNotPermitted = errors.New("rejection is not permitted at this stage")
	ErrInvalidOrExpiredOtp   = errors.New("invalid or expired OTP")
	ErrStageMismatch         = errors.New("application is not at the expected stage")
	ErrTerminalState         = errors.New("application is in a terminal state")
	ErrPaymentRequired       = errors.New("payment is required before this stage")

	ErrAccessDenied     = errors.New("no issued certificate matches the supplied details")
	ErrTokenExpired     = errors.New("download token expired")
	ErrTokenNotFound    = errors.New("download token not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// ValidationError carries a message that is safe to show the caller as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
