package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

const (
	DefaultPageSize = 10
	DefaultLookback = 48 * time.Hour
)

// Cursor is the persisted scan watermark.
type Cursor interface {
	Read(ctx context.Context, def time.Time) (time.Time, error)
	Advance(ctx context.Context, ts time.Time) error
}

// =============================================================================
// Scanner
// =============================================================================

// Scanner runs one incremental scan: read the watermark, query the window,
// dispatch each candidate in order, then advance the watermark.
type Scanner struct {
	cursor     Cursor
	dispatcher *Dispatcher
	pageSize   int
	lookback   time.Duration
	now        func() time.Time
	recorder   Recorder
	log        zerolog.Logger
}

// ScannerConfig wires a Scanner. Zero values fall back to defaults.
type ScannerConfig struct {
	Cursor     Cursor
	Dispatcher *Dispatcher
	PageSize   int
	Lookback   time.Duration
	Now        func() time.Time
	Recorder   Recorder
	Logger     zerolog.Logger
}

func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Scanner{
		cursor:     cfg.Cursor,
		dispatcher: cfg.Dispatcher,
		pageSize:   cfg.PageSize,
		lookback:   cfg.Lookback,
		now:        cfg.Now,
		recorder:   cfg.Recorder,
		log:        cfg.Logger,
	}
}

// Scan processes one window. The watermark is advanced to the time captured
// at scan start, and only when the query and every dispatch completed; an
// aborted scan leaves it unchanged so the window is retried, with already
// claimed messages skipped.
func (s *Scanner) Scan(ctx context.Context, mb out.MailSource) (summary *domain.ScanSummary, err error) {
	now := s.now()
	summary = &domain.ScanSummary{
		ScanID:    uuid.NewString(),
		StartedAt: now,
	}
	log := s.log.With().Str("scan_id", summary.ScanID).Logger()
	defer func() {
		s.recorder.RecordScan(s.now().Sub(now), err)
	}()

	since, err := s.cursor.Read(ctx, now.Add(-s.lookback))
	if err != nil {
		return summary, err
	}
	summary.Since = since

	refs, err := mb.ListMessages(ctx, Query(since), s.pageSize)
	if err != nil {
		if abortErr := asAbort(ctx, err); abortErr != nil {
			return summary, abortErr
		}
		return summary, fmt.Errorf("%w: list messages: %w", ErrScanAborted, err)
	}
	summary.Candidates = len(refs)

	if len(refs) == 0 {
		log.Info().Time("since", since).Msg("no new messages")
		if err := s.cursor.Advance(ctx, now); err != nil {
			return summary, err
		}
		return summary, nil
	}

	sess := NewSession(mb)
	for _, ref := range refs {
		res, err := s.dispatcher.Dispatch(ctx, sess, ref)
		if err != nil {
			log.Error().Err(err).Str("message_id", ref.ID).Msg("scan aborted")
			return summary, err
		}
		summary.Add(res)
	}

	if err := s.cursor.Advance(ctx, now); err != nil {
		return summary, err
	}

	log.Info().
		Int("candidates", summary.Candidates).
		Int("processed", summary.ProcessedCount).
		Int("dry_run", summary.DryRunCount).
		Int("skipped", summary.SkippedCount).
		Int("failed", summary.FailedCount).
		Msg("scan complete")
	return summary, nil
}

// Query renders the mailbox search for messages received after since.
func Query(since time.Time) string {
	return fmt.Sprintf("after:%d", since.Unix())
}
