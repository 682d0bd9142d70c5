// Package triage runs incremental scans: it claims, filters, classifies and
// labels each new message exactly once.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

// ThreadPolicy decides what happens to messages in multi-message threads.
type ThreadPolicy string

const (
	// ThreadPolicySkip never processes a message whose thread has more than one message.
	ThreadPolicySkip ThreadPolicy = "skip"
	// ThreadPolicyLatest processes only the newest message of a multi-message thread.
	ThreadPolicyLatest ThreadPolicy = "latest"
)

// ErrScanAborted marks failures that stop the whole scan.
var ErrScanAborted = errors.New("scan aborted")

// Claimer is the at-most-once claim primitive.
type Claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// Classifier assigns one label to an email.
type Classifier interface {
	Classify(ctx context.Context, email *domain.Email) (*domain.Classification, error)
}

// Recorder receives per-message and per-scan observations.
type Recorder interface {
	RecordOutcome(outcome domain.Outcome, label domain.TriageLabel)
	RecordScan(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(domain.Outcome, domain.TriageLabel) {}
func (nopRecorder) RecordScan(time.Duration, error)                  {}

// Candidate is a message moving through the dispatch steps.
type Candidate struct {
	Ref   domain.MessageRef
	Raw   *domain.RawMessage
	Email *domain.Email
}

// Session carries per-scan state shared across dispatches.
type Session struct {
	Mailbox      out.MailSource
	systemLabels map[string]struct{}
}

func NewSession(mb out.MailSource) *Session {
	return &Session{Mailbox: mb}
}

// SystemLabels returns the mailbox's system label ids, fetched once per session.
func (s *Session) SystemLabels(ctx context.Context) (map[string]struct{}, error) {
	if s.systemLabels != nil {
		return s.systemLabels, nil
	}
	labels, err := s.Mailbox.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l.IsSystem {
			set[l.ID] = struct{}{}
		}
	}
	s.systemLabels = set
	return set, nil
}

// RawParser decodes raw message bytes.
type RawParser func(raw []byte) (*domain.Email, error)

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher runs one candidate through claim, filter, classify and apply.
type Dispatcher struct {
	ledger     Claimer
	classifier Classifier
	applier    LabelApplier
	parse      RawParser
	policy     ThreadPolicy
	recorder   Recorder
	log        zerolog.Logger
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Ledger       Claimer
	Classifier   Classifier
	Applier      LabelApplier
	Parser       RawParser
	ThreadPolicy ThreadPolicy
	Recorder     Recorder
	Logger       zerolog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.ThreadPolicy == "" {
		cfg.ThreadPolicy = ThreadPolicySkip
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Dispatcher{
		ledger:     cfg.Ledger,
		classifier: cfg.Classifier,
		applier:    cfg.Applier,
		parse:      cfg.Parser,
		policy:     cfg.ThreadPolicy,
		recorder:   cfg.Recorder,
		log:        cfg.Logger,
	}
}

// Dispatch returns the terminal outcome for ref. A non-nil error means the
// scan must stop: the credential was rejected, the context ended, or the
// ledger could not be reached.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, ref domain.MessageRef) (domain.DispatchResult, error) {
	res, err := d.step(ctx, sess, ref)
	if err != nil {
		return res, err
	}

	ev := d.log.Info()
	if res.Outcome.IsFailure() {
		ev = d.log.Warn().Str("error", res.Error)
	}
	ev = ev.Str("message_id", ref.ID).Str("outcome", string(res.Outcome))
	if res.Label.Valid() {
		ev = ev.Str("label", res.Label.String())
	}
	ev.Msg("message dispatched")

	d.recorder.RecordOutcome(res.Outcome, res.Label)
	return res, nil
}

func (d *Dispatcher) step(ctx context.Context, sess *Session, ref domain.MessageRef) (domain.DispatchResult, error) {
	res := domain.DispatchResult{MessageID: ref.ID}
	fail := func(outcome domain.Outcome, err error) (domain.DispatchResult, error) {
		if abortErr := asAbort(ctx, err); abortErr != nil {
			return res, abortErr
		}
		res.Outcome = outcome
		res.Err = err
		res.Error = err.Error()
		return res, nil
	}

	claimed, err := d.ledger.Claim(ctx, ref.ID)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrScanAborted, err)
	}
	if !claimed {
		res.Outcome = domain.OutcomeSkippedDuplicate
		return res, nil
	}

	thread, err := sess.Mailbox.GetThreadMeta(ctx, ref.ThreadID)
	if err != nil {
		return fail(domain.OutcomeFailed, fmt.Errorf("thread metadata: %w", err))
	}
	if d.skipThread(ref, thread) {
		res.Outcome = domain.OutcomeSkippedMultiMessageThread
		return res, nil
	}

	raw, err := sess.Mailbox.GetRawMessage(ctx, ref.ID)
	if err != nil {
		return fail(domain.OutcomeFailed, fmt.Errorf("raw message: %w", err))
	}
	email, err := d.parse(raw.Raw)
	if err != nil {
		return fail(domain.OutcomeFailed, err)
	}
	res.Subject = email.Subject

	system, err := sess.SystemLabels(ctx)
	if err != nil {
		return fail(domain.OutcomeFailed, fmt.Errorf("system labels: %w", err))
	}
	for _, id := range raw.LabelIDs {
		if _, ok := system[id]; !ok {
			res.Outcome = domain.OutcomeSkippedAlreadyLabeled
			return res, nil
		}
	}

	verdict, err := d.classifier.Classify(ctx, email)
	if err != nil {
		return fail(domain.OutcomeClassificationFailed, err)
	}
	res.Label = verdict.Label
	d.log.Debug().Str("message_id", ref.ID).Str("label", verdict.Label.String()).Str("reasoning", verdict.Reasoning).Msg("classified")

	cand := &Candidate{Ref: ref, Raw: raw, Email: email}
	outcome, err := d.applier.Apply(ctx, sess.Mailbox, cand, verdict.Label)
	if err != nil {
		return fail(domain.OutcomeFailed, fmt.Errorf("apply label: %w", err))
	}
	res.Outcome = outcome
	return res, nil
}

func (d *Dispatcher) skipThread(ref domain.MessageRef, thread *domain.ThreadMeta) bool {
	if thread.MessageCount <= 1 {
		return false
	}
	if d.policy == ThreadPolicyLatest {
		return thread.LatestMessageID != ref.ID
	}
	return true
}

// asAbort returns a scan-level error when err must stop the scan.
func asAbort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrScanAborted, ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrScanAborted, err)
	}
	var pe *out.ProviderError
	if errors.As(err, &pe) && pe.IsAuth() {
		return fmt.Errorf("%w: %w", ErrScanAborted, err)
	}
	return nil
}
