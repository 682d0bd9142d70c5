package triage

import (
	"context"

	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

// LabelApplier is the single point where a classification turns into an
// irreversible mailbox change, or deliberately does not.
type LabelApplier interface {
	Apply(ctx context.Context, mb out.MailSource, msg *Candidate, label domain.TriageLabel) (domain.Outcome, error)
}

// DryRunApplier logs the intended label and leaves the mailbox untouched.
type DryRunApplier struct {
	log zerolog.Logger
}

func NewDryRunApplier(log zerolog.Logger) *DryRunApplier {
	return &DryRunApplier{log: log}
}

func (a *DryRunApplier) Apply(_ context.Context, _ out.MailSource, msg *Candidate, label domain.TriageLabel) (domain.Outcome, error) {
	a.log.Info().
		Str("message_id", msg.Ref.ID).
		Str("subject", msg.Email.Subject).
		Str("label", label.String()).
		Msg("dry run: would have applied label")
	return domain.OutcomeDryRunComplete, nil
}

// MailboxApplier resolves the label id by name, creating it on first use, and
// adds it to the message.
type MailboxApplier struct {
	resolver *LabelResolver
}

func NewMailboxApplier(resolver *LabelResolver) *MailboxApplier {
	return &MailboxApplier{resolver: resolver}
}

func (a *MailboxApplier) Apply(ctx context.Context, mb out.MailSource, msg *Candidate, label domain.TriageLabel) (domain.Outcome, error) {
	name := label.String()
	labelID, err := a.resolver.Resolve(ctx, mb, name)
	if err != nil {
		return domain.OutcomeFailed, err
	}

	err = mb.AddLabels(ctx, msg.Ref.ID, []string{labelID})
	if isStaleLabel(err) {
		// label was deleted since it was cached
		a.resolver.Forget(name)
		if labelID, err = a.resolver.Resolve(ctx, mb, name); err != nil {
			return domain.OutcomeFailed, err
		}
		err = mb.AddLabels(ctx, msg.Ref.ID, []string{labelID})
	}
	if err != nil {
		return domain.OutcomeFailed, err
	}
	return domain.OutcomeLabeled, nil
}
