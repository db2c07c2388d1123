package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication flow errors
	ErrInvalidCredentials  = errors.New("invalid email, password, or account disabled")
	ErrSessionExpired      = errors.New("session expired, please login again")
	ErrOTPExpired          = errors.New("otp has expired, please login again")
	ErrOTPMismatch         = errors.New("invalid otp")
	ErrOTPAttemptsExceeded = errors.New("too many otp attempts, please login again")

	// Challenge errors
	ErrCaptchaRequired = errors.New("security verification required")
	ErrCaptchaFailed   = errors.New("security verification failed")
)
