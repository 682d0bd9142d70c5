package auth

import (
	"context"
	"fmt"

	"triage_worker/core/port/out"
	"triage_worker/core/service/common"
	"triage_worker/pkg/apperr"
)

// TokenCipher seals the refresh token at rest. *crypto.Encryptor satisfies it.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// CredentialStore persists the single OAuth refresh token of the connected mailbox.
type CredentialStore struct {
	kv     out.KVStore
	keys   common.Keyspace
	cipher TokenCipher
}

func NewCredentialStore(kv out.KVStore, keys common.Keyspace) *CredentialStore {
	return &CredentialStore{kv: kv, keys: keys}
}

// WithCipher enables encryption for tokens written afterwards.
func (s *CredentialStore) WithCipher(c TokenCipher) *CredentialStore {
	s.cipher = c
	return s
}

// RefreshToken returns apperr.ErrNoCredential when no mailbox has been connected.
func (s *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	token, ok, err := s.kv.Get(ctx, s.keys.RefreshToken())
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || token == "" {
		return "", apperr.ErrNoCredential
	}
	if s.cipher != nil {
		if token, err = s.cipher.Decrypt(token); err != nil {
			return "", fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return token, nil
}

func (s *CredentialStore) SetRefreshToken(ctx context.Context, token string) error {
	if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(token)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		token = sealed
	}
	if _, err := s.kv.Set(ctx, s.keys.RefreshToken(), token, out.SetOptions{}); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}
