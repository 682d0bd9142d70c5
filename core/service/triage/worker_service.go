package triage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
)

// CredentialSource yields the stored refresh token.
type CredentialSource interface {
	RefreshToken(ctx context.Context) (string, error)
}

// Resettable is implemented by the ledger.
type Resettable interface {
	ResetAll(ctx context.Context) (int, error)
}

// Clearable is implemented by the watermark store.
type Clearable interface {
	Clear(ctx context.Context) error
}

// Service connects the stored credential to a mailbox and runs scans on it.
type Service struct {
	creds     CredentialSource
	mailboxes out.MailSourceFactory
	scanner   *Scanner
	ledger    Resettable
	watermark Clearable
	log       zerolog.Logger
}

var _ in.ScanService = (*Service)(nil)

func NewService(
	creds CredentialSource,
	mailboxes out.MailSourceFactory,
	scanner *Scanner,
	ledger Resettable,
	watermark Clearable,
	log zerolog.Logger,
) *Service {
	return &Service{
		creds:     creds,
		mailboxes: mailboxes,
		scanner:   scanner,
		ledger:    ledger,
		watermark: watermark,
		log:       log,
	}
}

// RunScan fails with apperr.ErrNoCredential before touching the mailbox when
// no refresh token is stored.
func (s *Service) RunScan(ctx context.Context) (*domain.ScanSummary, error) {
	token, err := s.creds.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	mb, err := s.mailboxes.ForRefreshToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connect mailbox: %w", err)
	}
	return s.scanner.Scan(ctx, mb)
}

func (s *Service) Reset(ctx context.Context) (int, error) {
	if err := s.watermark.Clear(ctx); err != nil {
		return 0, err
	}
	n, err := s.ledger.ResetAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("deleted_dedup_keys", n).Msg("scan state reset")
	return n, nil
}
