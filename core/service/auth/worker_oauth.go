package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/core/service/common"
)

// stateTTL bounds how long a consent redirect may take.
const stateTTL = 10 * time.Minute

var (
	ErrInvalidState        = errors.New("oauth state missing or expired")
	ErrMissingRefreshToken = errors.New("token response carried no refresh token")
)

// Scopes requested at consent: read mail and modify labels.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
}

// NewGoogleConfig builds the OAuth client configuration for Gmail.
func NewGoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

type OAuthService struct {
	config *oauth2.Config
	creds  *CredentialStore
	kv     out.KVStore
	keys   common.Keyspace
}

var _ in.OAuthService = (*OAuthService)(nil)

func NewOAuthService(config *oauth2.Config, creds *CredentialStore, kv out.KVStore, keys common.Keyspace) *OAuthService {
	return &OAuthService{config: config, creds: creds, kv: kv, keys: keys}
}

// GetAuthURL issues a one-time state and returns the consent URL. Offline
// access with forced consent makes Google return a refresh token every time.
func (s *OAuthService) GetAuthURL(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if _, err := s.kv.Set(ctx, s.keys.OAuthState(state), "1", out.SetOptions{TTL: stateTTL}); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback validates state, exchanges the code and stores the refresh token.
func (s *OAuthService) HandleCallback(ctx context.Context, code, state string) error {
	if err := s.consumeState(ctx, state); err != nil {
		return err
	}

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return ErrMissingRefreshToken
	}
	return s.creds.SetRefreshToken(ctx, token.RefreshToken)
}

func (s *OAuthService) consumeState(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	key := s.keys.OAuthState(state)
	n, err := s.kv.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("validate oauth state: %w", err)
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}
