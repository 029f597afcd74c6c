package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnverified         = errors.New("account not verified")
	ErrConflict           = errors.New("username, email, or mobile already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrTokenInvalid       = errors.New("token expired or invalid")
	ErrOTPInvalid         = errors.New("invalid or expired otp")
	ErrNoDeliveryChannel  = errors.New("account has no email for code delivery")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrSessionUnavailable = errors.New("session signing secret not configured")
)

// ValidationError describe un input rechazado antes de tocar el store.
// El mensaje es apto para el cliente.
type ValidationError struct {
	msg string
}

func newValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// IsValidation indica si err proviene de validacion de input.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
