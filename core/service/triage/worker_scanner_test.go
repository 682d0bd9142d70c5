package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"triage_worker/adapter/out/persistence"
	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/core/service/common"
	"triage_worker/core/service/ledger"
	"triage_worker/core/service/watermark"
)

type harness struct {
	kv         *persistence.MemoryKV
	mailbox    *fakeMailbox
	classifier *fakeClassifier
	cursor     *watermark.Store
	ledger     *ledger.Ledger
	scanner    *Scanner
	now        time.Time
}

type harnessOpts struct {
	dryRun bool
	policy ThreadPolicy
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	h := &harness{
		kv:         persistence.NewMemoryKV(),
		mailbox:    newFakeMailbox(),
		classifier: &fakeClassifier{},
		now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	keys := common.NewKeyspace("", "test")
	h.cursor = watermark.New(h.kv, keys)
	h.ledger = ledger.New(h.kv, keys, 0)

	var applier LabelApplier = NewMailboxApplier(NewLabelResolver())
	if opts.dryRun {
		applier = NewDryRunApplier(zerolog.Nop())
	}
	dispatcher := NewDispatcher(DispatcherConfig{
		Ledger:       h.ledger,
		Classifier:   h.classifier,
		Applier:      applier,
		Parser:       subjectParser,
		ThreadPolicy: opts.policy,
		Logger:       zerolog.Nop(),
	})
	h.scanner = NewScanner(ScannerConfig{
		Cursor:     h.cursor,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return h.now },
		Logger:     zerolog.Nop(),
	})
	return h
}

func (h *harness) scan(t *testing.T) *domain.ScanSummary {
	t.Helper()
	summary, err := h.scanner.Scan(context.Background(), h.mailbox)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	return summary
}

func (h *harness) watermark(t *testing.T) time.Time {
	t.Helper()
	ts, err := h.cursor.Read(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	return ts
}

func outcomes(s *domain.ScanSummary) map[string]domain.Outcome {
	m := make(map[string]domain.Outcome, len(s.Results))
	for _, r := range s.Results {
		m[r.MessageID] = r.Outcome
	}
	return m
}

func TestScan_LabelsNewMessage(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "Your invoice is ready")

	summary := h.scan(t)

	if summary.Candidates != 1 || summary.ProcessedCount != 1 {
		t.Fatalf("expected 1 candidate and 1 processed, got %+v", summary)
	}
	if got := summary.Results[0].Label; got != domain.LabelTransactional {
		t.Errorf("expected TRANSACTIONAL, got %s", got)
	}

	var labelID string
	for _, l := range h.mailbox.labels {
		if l.Name == "TRANSACTIONAL" {
			labelID = l.ID
		}
	}
	if labelID == "" {
		t.Fatal("expected TRANSACTIONAL label to be created")
	}
	found := false
	for _, id := range h.mailbox.labelsOf("m1") {
		if id == labelID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected m1 to carry %s, got %v", labelID, h.mailbox.labelsOf("m1"))
	}
	if !h.watermark(t).Equal(h.now.Truncate(time.Second)) {
		t.Errorf("expected watermark %v, got %v", h.now, h.watermark(t))
	}
}

func TestScan_DryRunLeavesMailboxUntouched(t *testing.T) {
	h := newHarness(t, harnessOpts{dryRun: true})
	h.mailbox.add("m1", "", "urgent: sign the contract")

	summary := h.scan(t)

	if summary.DryRunCount != 1 || summary.ProcessedCount != 0 {
		t.Fatalf("expected 1 dry run, got %+v", summary)
	}
	if outcomes(summary)["m1"] != domain.OutcomeDryRunComplete {
		t.Errorf("expected DRY_RUN_COMPLETE, got %s", outcomes(summary)["m1"])
	}
	if h.mailbox.createCalls != 0 {
		t.Errorf("expected no label creation in dry run, got %d", h.mailbox.createCalls)
	}
	if got := h.mailbox.labelsOf("m1"); len(got) != 2 {
		t.Errorf("expected labels unchanged, got %v", got)
	}
}

func TestScan_SecondScanSkipsDuplicates(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "weekly digest")

	h.scan(t)
	h.now = h.now.Add(time.Minute)
	summary := h.scan(t)

	if outcomes(summary)["m1"] != domain.OutcomeSkippedDuplicate {
		t.Errorf("expected SKIPPED_DUPLICATE, got %s", outcomes(summary)["m1"])
	}
	if h.classifier.Calls() != 1 {
		t.Errorf("expected classifier called once, got %d", h.classifier.Calls())
	}
}

func TestScan_OverlappingScansClaimOnce(t *testing.T) {
	h := newHarness(t, harnessOpts{dryRun: true})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.mailbox.add(id, "", "hello "+id)
	}

	const scans = 4
	var wg sync.WaitGroup
	summaries := make([]*domain.ScanSummary, scans)
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := h.scanner.Scan(context.Background(), h.mailbox)
			if err != nil {
				t.Errorf("scan %d failed: %v", i, err)
				return
			}
			summaries[i] = s
		}(i)
	}
	wg.Wait()

	worked := map[string]int{}
	for _, s := range summaries {
		if s == nil {
			continue
		}
		for _, r := range s.Results {
			if r.Outcome != domain.OutcomeSkippedDuplicate {
				worked[r.MessageID]++
			}
		}
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if worked[id] != 1 {
			t.Errorf("expected %s processed exactly once, got %d", id, worked[id])
		}
	}
	if h.classifier.Calls() != 5 {
		t.Errorf("expected 5 classifier calls, got %d", h.classifier.Calls())
	}
}

func TestScan_SkipsMultiMessageThread(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "t1", "first")
	h.mailbox.add("m2", "t1", "Re: first")

	summary := h.scan(t)

	for _, id := range []string{"m1", "m2"} {
		if outcomes(summary)[id] != domain.OutcomeSkippedMultiMessageThread {
			t.Errorf("expected %s SKIPPED_MULTI_MESSAGE_THREAD, got %s", id, outcomes(summary)[id])
		}
	}
	if h.classifier.Calls() != 0 {
		t.Errorf("expected no classifier calls, got %d", h.classifier.Calls())
	}
	if summary.SkippedCount != 2 {
		t.Errorf("expected 2 skipped, got %d", summary.SkippedCount)
	}
}

func TestScan_LatestThreadPolicy(t *testing.T) {
	h := newHarness(t, harnessOpts{policy: ThreadPolicyLatest, dryRun: true})
	h.mailbox.add("m1", "t1", "first")
	h.mailbox.add("m2", "t1", "Re: first")

	summary := h.scan(t)

	if outcomes(summary)["m1"] != domain.OutcomeSkippedMultiMessageThread {
		t.Errorf("expected m1 skipped, got %s", outcomes(summary)["m1"])
	}
	if outcomes(summary)["m2"] != domain.OutcomeDryRunComplete {
		t.Errorf("expected m2 processed, got %s", outcomes(summary)["m2"])
	}
}

func TestScan_AlreadyLabeledNeverClassified(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.addUserLabel("Label_user", "Receipts")
	h.mailbox.add("m1", "", "invoice", "INBOX", "Label_user")
	h.mailbox.add("m2", "", "invoice", "INBOX", "IMPORTANT")

	summary := h.scan(t)

	if outcomes(summary)["m1"] != domain.OutcomeSkippedAlreadyLabeled {
		t.Errorf("expected m1 SKIPPED_ALREADY_LABELED, got %s", outcomes(summary)["m1"])
	}
	if outcomes(summary)["m2"] != domain.OutcomeLabeled {
		t.Errorf("expected m2 LABELED, got %s", outcomes(summary)["m2"])
	}
	if h.classifier.Calls() != 1 {
		t.Errorf("expected one classifier call, got %d", h.classifier.Calls())
	}
	if h.mailbox.listLabels < 1 {
		t.Error("expected system labels to be listed")
	}
}

func TestScan_ClassificationFailureContinues(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "FAIL me")
	h.mailbox.add("m2", "", "invoice")

	summary := h.scan(t)

	if outcomes(summary)["m1"] != domain.OutcomeClassificationFailed {
		t.Errorf("expected CLASSIFICATION_FAILED, got %s", outcomes(summary)["m1"])
	}
	if outcomes(summary)["m2"] != domain.OutcomeLabeled {
		t.Errorf("expected m2 LABELED, got %s", outcomes(summary)["m2"])
	}
	if summary.FailedCount != 1 || summary.ProcessedCount != 1 {
		t.Errorf("expected 1 failed and 1 processed, got %+v", summary)
	}
	if summary.Results[0].Error == "" {
		t.Error("expected error text on failed result")
	}
	if h.watermark(t).IsZero() {
		t.Error("expected watermark to advance after a completed scan")
	}
}

func TestScan_TransportErrorMarksFailed(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "hello")
	h.mailbox.add("m2", "", "hello again")
	h.mailbox.rawErr["m1"] = out.NewProviderError("fake", out.ProviderErrServer, "boom", nil, true)

	summary := h.scan(t)

	if outcomes(summary)["m1"] != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcomes(summary)["m1"])
	}
	if outcomes(summary)["m2"] != domain.OutcomeLabeled {
		t.Errorf("expected m2 LABELED, got %s", outcomes(summary)["m2"])
	}
}

func TestScan_AuthErrorAbortsWithoutAdvancing(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "hello")
	h.mailbox.add("m2", "", "hello again")
	h.mailbox.threadErr["t-m1"] = out.NewProviderError("fake", out.ProviderErrTokenExpired, "expired", nil, false)

	_, err := h.scanner.Scan(context.Background(), h.mailbox)
	if !errors.Is(err, ErrScanAborted) {
		t.Fatalf("expected ErrScanAborted, got %v", err)
	}
	if !h.watermark(t).IsZero() {
		t.Errorf("expected watermark untouched, got %v", h.watermark(t))
	}
	if h.classifier.Calls() != 0 {
		t.Errorf("expected no classification after abort, got %d", h.classifier.Calls())
	}
}

func TestScan_ListErrorAborts(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.listErr = out.NewProviderError("fake", out.ProviderErrServer, "unavailable", nil, true)

	_, err := h.scanner.Scan(context.Background(), h.mailbox)
	if !errors.Is(err, ErrScanAborted) {
		t.Fatalf("expected ErrScanAborted, got %v", err)
	}
	if !h.watermark(t).IsZero() {
		t.Error("expected watermark untouched")
	}
}

func TestScan_CanceledContextAborts(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.mailbox.add("m1", "", "hello")
	h.mailbox.rawErr["m1"] = context.Canceled

	_, err := h.scanner.Scan(context.Background(), h.mailbox)
	if !errors.Is(err, ErrScanAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected aborted by cancellation, got %v", err)
	}
}

func TestScan_EmptyWindowAdvancesWatermark(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	summary := h.scan(t)

	if summary.Candidates != 0 || len(summary.Results) != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
	if !h.watermark(t).Equal(h.now) {
		t.Errorf("expected watermark %v, got %v", h.now, h.watermark(t))
	}
}

func TestScan_QueryUsesWatermarkOrLookback(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	h.scan(t)
	first := h.now
	h.now = h.now.Add(10 * time.Minute)
	h.scan(t)

	want := []string{
		Query(first.Add(-DefaultLookback)),
		Query(first),
	}
	if len(h.mailbox.queries) != 2 {
		t.Fatalf("expected 2 queries, got %v", h.mailbox.queries)
	}
	for i, q := range want {
		if h.mailbox.queries[i] != q {
			t.Errorf("query %d: expected %q, got %q", i, q, h.mailbox.queries[i])
		}
	}
}

func TestScan_WatermarkMonotonic(t *testing.T) {
	h := newHarness(t, harnessOpts{dryRun: true})
	h.mailbox.add("m1", "", "hello")

	var last time.Time
	for i := 0; i < 3; i++ {
		h.now = h.now.Add(time.Duration(i+1) * time.Minute)
		h.scan(t)
		wm := h.watermark(t)
		if wm.Before(last) {
			t.Fatalf("watermark went backwards: %v after %v", wm, last)
		}
		last = wm
	}
}

func TestScan_PageSizeBoundsCandidates(t *testing.T) {
	h := newHarness(t, harnessOpts{dryRun: true})
	for i := 0; i < DefaultPageSize+5; i++ {
		h.mailbox.add(string(rune('a'+i)), "", "hello")
	}

	summary := h.scan(t)

	if summary.Candidates != DefaultPageSize {
		t.Errorf("expected %d candidates, got %d", DefaultPageSize, summary.Candidates)
	}
}

func TestQuery(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	if got := Query(ts); got != "after:1700000000" {
		t.Errorf("expected after:1700000000, got %s", got)
	}
}
