package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInvalidSignature = "INVALID_SIGNATURE"

	// Validation errors
	CodeBadRequest = "BAD_REQUEST"

	// External errors
	CodeOAuthFailed   = "OAUTH_FAILED"
	CodeExternalError = "EXTERNAL_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

const msgInternal = "Internal Server Error"

// Sentinels shared across services. Wrap them with fmt.Errorf("%w") and match with errors.Is.
var (
	ErrNoCredential   = errors.New("no refresh token stored")
	ErrClassification = errors.New("classification failed")
	ErrCacheCorrupt   = errors.New("cached response is corrupt")
)

// AppError represents a structured application error. Err, when set, is
// rendered as the response details.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidSignature(reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidSignature,
		Message: "invalid request signature",
		Status:  http.StatusUnauthorized,
		Err:     errors.New(reason),
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// External errors

// OAuthFailed is a failed authorization-code exchange.
func OAuthFailed(err error) *AppError {
	return &AppError{
		Code:    CodeOAuthFailed,
		Message: "Failed to exchange code for tokens",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("%s failed", service),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Internal errors

// Internal hides the cause from the caller.
func Internal() *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: msgInternal,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: msgInternal,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}
