package classification

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"triage_worker/core/domain"
)

// =============================================================================
// Offline evaluation
// =============================================================================

// EvalCase is one labelled example.
type EvalCase struct {
	Email    domain.Email
	Expected domain.TriageLabel
}

// EvalRow is the outcome of one case.
type EvalRow struct {
	Input     string
	Output    string
	Expected  domain.TriageLabel
	Reasoning string
	Match     bool
	Err       error
}

// EvalReport aggregates an evaluation run.
type EvalReport struct {
	Rows  []EvalRow
	Score float64
}

// EvalCases returns the labelled fixture set used for prompt regression checks.
func EvalCases() []EvalCase {
	mk := func(from, subject, text string, expected domain.TriageLabel) EvalCase {
		return EvalCase{
			Email:    domain.Email{From: from, Subject: subject, Text: text},
			Expected: expected,
		}
	}
	return []EvalCase{
		mk("boss@company.com",
			"Urgent: Need your approval on the budget proposal",
			"Hi, please review and approve the attached budget proposal by end of day. Let me know if you have any questions.",
			domain.LabelActionRequired),
		mk("team@company.com",
			"Project status update - Q4 planning complete",
			"Hi team, just wanted to let you know that the Q4 planning session has been completed. All deliverables have been documented in Confluence. No action needed on your part.",
			domain.LabelFYI),
		mk("noreply@github.com",
			"[user/repo] Pull request #123 merged",
			"Merged #123 into main. Commit abc123: Fix typo in README.md",
			domain.LabelTransactional),
		mk("newsletter@techweekly.com",
			"Tech Weekly Digest - Top Stories This Week",
			"Welcome to this week's Tech Weekly! Here are the top stories: 1. AI advances in 2024, 2. New JavaScript framework released, 3. Cloud computing trends. Click to read more. Unsubscribe at any time.",
			domain.LabelNewsletter),
		mk("sales@randomcompany.io",
			"Quick question about your business needs",
			"Hi, I noticed your company is growing and wanted to reach out about our enterprise solutions. We've helped 500+ companies increase revenue by 200%. Can I get 15 minutes on your calendar?",
			domain.LabelSpamLowPriority),
		mk("promo@onlinestore.com",
			"\U0001F525 FLASH SALE: 50% OFF Everything Today Only!",
			"Don't miss out on our biggest sale of the year! Use code SAVE50 at checkout. Shop now before it's too late! This email was sent to you because you made a purchase. To unsubscribe, click here.",
			domain.LabelSpamLowPriority),
		mk("unknown@example.org",
			"Fwd: Fwd: Fwd:",
			"---------- Forwarded message ----------",
			domain.LabelUncategorized),
		mk("hello@blueprint.com",
			"Our sale started today",
			"Hi friend,\n\nOur sale started today. For the next three days, these products are all 25% off. It's our biggest discount of the year and ends Monday at midnight.\n\nYuzu Pineapple Longevity Mix.v NAC, Ginger + Curcumin. Nutty Butter. Cocoa. Matcha. Manuka Honey. Nutty Butter. Macadamia Nut Puree.\n\nWe'll be saying goodbye to all of these products over the next several months, so if you have any favorites, now's the time to stock up.\n\nUse code IMMORTAL25 at checkout.\n\nBlueprint",
			domain.LabelSpamLowPriority),
	}
}

// Evaluate classifies every case and scores exact label matches. Failed
// classifications count as misses.
func (c *Classifier) Evaluate(ctx context.Context, cases []EvalCase) (*EvalReport, error) {
	report := &EvalReport{Rows: make([]EvalRow, 0, len(cases))}
	matches := 0
	for i := range cases {
		tc := &cases[i]
		row := EvalRow{
			Input:    evalInputColumn(&tc.Email),
			Expected: tc.Expected,
		}
		got, err := c.Classify(ctx, &tc.Email)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			row.Err = err
			row.Output = "ERROR"
		default:
			row.Output = got.Label.String()
			row.Reasoning = got.Reasoning
			row.Match = got.Label == tc.Expected
		}
		if row.Match {
			matches++
		}
		report.Rows = append(report.Rows, row)
	}
	if len(cases) > 0 {
		report.Score = float64(matches) / float64(len(cases))
	}
	return report, nil
}

// evalInputColumn renders the first 50 characters of "from subject body".
func evalInputColumn(e *domain.Email) string {
	s := strings.Join([]string{e.From, e.Subject, e.Text}, " ")
	if utf8.RuneCountInString(s) <= 50 {
		return s
	}
	return string([]rune(s)[:50])
}

// String renders the report as a plain table.
func (r *EvalReport) String() string {
	var b strings.Builder
	for _, row := range r.Rows {
		mark := "x"
		if row.Match {
			mark = "ok"
		}
		fmt.Fprintf(&b, "[%s] %-50q output=%-18s expected=%s\n", mark, row.Input, row.Output, row.Expected)
	}
	fmt.Fprintf(&b, "score: %.2f\n", r.Score)
	return b.String()
}
