// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"triage_worker/core/domain"
)

// =============================================================================
// Mail Source Port (Gmail)
// =============================================================================

// MailSource defines the outbound port for the mailbox being triaged.
// All calls act on the authenticated user's own mailbox.
type MailSource interface {
	MailMessageReader
	MailLabelManager
}

// MailMessageReader handles querying and reading messages.
type MailMessageReader interface {
	// ListMessages runs a provider search query and returns at most limit refs.
	ListMessages(ctx context.Context, query string, limit int) ([]domain.MessageRef, error)
	GetThreadMeta(ctx context.Context, threadID string) (*domain.ThreadMeta, error)
	GetRawMessage(ctx context.Context, messageID string) (*domain.RawMessage, error)
}

// MailLabelManager handles the mailbox label set.
type MailLabelManager interface {
	ListLabels(ctx context.Context) ([]domain.MailLabel, error)
	CreateLabel(ctx context.Context, name string) (*domain.MailLabel, error)
	AddLabels(ctx context.Context, messageID string, labelIDs []string) error
}

// MailSourceFactory builds a MailSource bound to a refresh token.
type MailSourceFactory interface {
	ForRefreshToken(ctx context.Context, refreshToken string) (MailSource, error)
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth          ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired  ProviderErrorCode = "token_expired"
	ProviderErrRateLimit     ProviderErrorCode = "rate_limit"
	ProviderErrNotFound      ProviderErrorCode = "not_found"
	ProviderErrAlreadyExists ProviderErrorCode = "already_exists"
	ProviderErrNetwork       ProviderErrorCode = "network_error"
	ProviderErrServer        ProviderErrorCode = "server_error"
	ProviderErrInvalidInput  ProviderErrorCode = "invalid_input"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the error means the credential is unusable.
func (e *ProviderError) IsAuth() bool {
	return e.Code == ProviderErrAuth || e.Code == ProviderErrTokenExpired
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
