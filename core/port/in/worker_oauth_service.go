package in

import (
	"context"
)

type OAuthService interface {
	// Get OAuth URL for authorization; the returned state must come back on the callback.
	GetAuthURL(ctx context.Context) (string, error)

	// Handle OAuth callback and persist the refresh token
	HandleCallback(ctx context.Context, code, state string) error
}
