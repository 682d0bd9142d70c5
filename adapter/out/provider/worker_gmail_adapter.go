// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/logger"
)

const (
	providerGmail = "gmail"
	userMe        = "me"
	labelTypeSys  = "system"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter builds per-credential Gmail mailboxes that share one circuit breaker.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
	opts   []option.ClientOption
	base   *http.Client
}

var _ out.MailSourceFactory = (*GmailAdapter)(nil)

// NewGmailAdapter creates a new Gmail adapter. Extra client options are
// appended to every service it builds.
func NewGmailAdapter(config *oauth2.Config, opts ...option.ClientOption) *GmailAdapter {
	return &GmailAdapter{
		config: config,
		cb:     NewGmailCircuitBreaker(),
		opts:   opts,
	}
}

// WithHTTPClient routes token refreshes and API calls through base.
func (a *GmailAdapter) WithHTTPClient(base *http.Client) *GmailAdapter {
	a.base = base
	return a
}

// NewGmailCircuitBreaker returns the breaker guarding Gmail API calls.
func NewGmailCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,                // Half-open 상태에서 허용할 요청 수
		Interval:    60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:     30 * time.Second, // Open 상태 유지 시간 (이후 Half-open)
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// ForRefreshToken returns a mailbox authorized by a stored refresh token.
// The access token is minted lazily on the first request.
func (a *GmailAdapter) ForRefreshToken(ctx context.Context, refreshToken string) (out.MailSource, error) {
	if refreshToken == "" {
		return nil, out.NewProviderError(providerGmail, out.ProviderErrAuth, "missing refresh token", nil, false)
	}
	var auth option.ClientOption
	if a.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.base)
		ts := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		auth = option.WithHTTPClient(oauth2.NewClient(ctx, ts))
	} else {
		auth = option.WithTokenSource(a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}))
	}
	opts := append([]option.ClientOption{auth}, a.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGmailMailbox(svc, a.cb), nil
}

// GetCircuitBreakerState returns the current state of the circuit breaker.
func (a *GmailAdapter) GetCircuitBreakerState() string {
	return a.cb.State().String()
}

// =============================================================================
// Gmail Mailbox
// =============================================================================

// GmailMailbox implements out.MailSource for one authorized Gmail account.
type GmailMailbox struct {
	svc *gmail.Service
	cb  *gobreaker.CircuitBreaker
}

var _ out.MailSource = (*GmailMailbox)(nil)

func NewGmailMailbox(svc *gmail.Service, cb *gobreaker.CircuitBreaker) *GmailMailbox {
	if cb == nil {
		cb = NewGmailCircuitBreaker()
	}
	return &GmailMailbox{svc: svc, cb: cb}
}

// ListMessages runs a Gmail search query, e.g. "after:1700000000".
func (m *GmailMailbox) ListMessages(ctx context.Context, query string, limit int) ([]domain.MessageRef, error) {
	var resp *gmail.ListMessagesResponse
	err := m.execute(ctx, "messages.list", func() error {
		var err error
		resp, err = m.svc.Users.Messages.List(userMe).Q(query).MaxResults(int64(limit)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}

	refs := make([]domain.MessageRef, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if msg.Id == "" || msg.ThreadId == "" {
			continue
		}
		refs = append(refs, domain.MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
	}
	return refs, nil
}

func (m *GmailMailbox) GetThreadMeta(ctx context.Context, threadID string) (*domain.ThreadMeta, error) {
	var thread *gmail.Thread
	err := m.execute(ctx, "threads.get", func() error {
		var err error
		thread, err = m.svc.Users.Threads.Get(userMe, threadID).Format("minimal").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to get thread")
	}

	meta := &domain.ThreadMeta{ThreadID: thread.Id, MessageCount: len(thread.Messages)}
	var latest int64 = -1
	for _, msg := range thread.Messages {
		if msg.InternalDate >= latest {
			latest = msg.InternalDate
			meta.LatestMessageID = msg.Id
		}
	}
	return meta, nil
}

func (m *GmailMailbox) GetRawMessage(ctx context.Context, messageID string) (*domain.RawMessage, error) {
	var msg *gmail.Message
	err := m.execute(ctx, "messages.get", func() error {
		var err error
		msg, err = m.svc.Users.Messages.Get(userMe, messageID).Format("raw").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}

	raw, err := decodeBase64URL(msg.Raw)
	if err != nil {
		return nil, out.NewProviderError(providerGmail, out.ProviderErrInvalidInput, "undecodable raw message", err, false)
	}
	return &domain.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Raw:      raw,
		LabelIDs: msg.LabelIds,
	}, nil
}

func (m *GmailMailbox) ListLabels(ctx context.Context) ([]domain.MailLabel, error) {
	var resp *gmail.ListLabelsResponse
	err := m.execute(ctx, "labels.list", func() error {
		var err error
		resp, err = m.svc.Users.Labels.List(userMe).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to list labels")
	}

	labels := make([]domain.MailLabel, len(resp.Labels))
	for i, l := range resp.Labels {
		labels[i] = domain.MailLabel{
			ID:       l.Id,
			Name:     l.Name,
			IsSystem: l.Type == labelTypeSys,
		}
	}
	return labels, nil
}

// CreateLabel creates a visible user label. A name collision surfaces as
// ProviderErrAlreadyExists.
func (m *GmailMailbox) CreateLabel(ctx context.Context, name string) (*domain.MailLabel, error) {
	label := &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	var created *gmail.Label
	err := m.execute(ctx, "labels.create", func() error {
		var err error
		created, err = m.svc.Users.Labels.Create(userMe, label).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to create label")
	}
	return &domain.MailLabel{ID: created.Id, Name: created.Name, IsSystem: created.Type == labelTypeSys}, nil
}

func (m *GmailMailbox) AddLabels(ctx context.Context, messageID string, labelIDs []string) error {
	req := &gmail.ModifyMessageRequest{AddLabelIds: labelIDs}
	err := m.execute(ctx, "messages.modify", func() error {
		_, err := m.svc.Users.Messages.Modify(userMe, messageID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return wrapError(err, "failed to modify labels")
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// execute wraps an API call with circuit breaker protection. Client errors
// pass through without counting against the breaker.
func (m *GmailMailbox) execute(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404, 409:
					return nil, &nonCircuitError{err: err}
				}
			}
			if isOAuthError(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if err != nil {
		logger.Warn("[GmailAdapter] %s failed: state=%s, err=%v", operation, m.cb.State().String(), err)
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func isOAuthError(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

// wrapError maps transport errors onto ProviderError codes.
func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewProviderError(providerGmail, out.ProviderErrServer, "Circuit open", err, true)
	}
	if isOAuthError(err) {
		return out.NewProviderError(providerGmail, out.ProviderErrTokenExpired, "Refresh token rejected", err, false)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError(providerGmail, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(providerGmail, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerGmail, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerGmail, out.ProviderErrNotFound, "Not found", err, false)
		case 409:
			return out.NewProviderError(providerGmail, out.ProviderErrAlreadyExists, "Already exists", err, false)
		case 429:
			return out.NewProviderError(providerGmail, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(providerGmail, out.ProviderErrServer, "Server error", err, true)
		case 400:
			return out.NewProviderError(providerGmail, out.ProviderErrInvalidInput, defaultMsg, err, false)
		}
	}

	return out.NewProviderError(providerGmail, out.ProviderErrNetwork, defaultMsg, err, true)
}

// decodeBase64URL accepts Gmail's URL-safe base64 with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}
