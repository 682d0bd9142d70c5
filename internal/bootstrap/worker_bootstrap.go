package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"triage_worker/adapter/in/worker"
	"triage_worker/config"
	"triage_worker/core/service/classification"
	"triage_worker/pkg/logger"
)

// Worker runs scans on SCAN_SCHEDULE.
type Worker struct {
	scheduler *worker.ScanScheduler
}

func NewWorker(deps *Dependencies) (*Worker, error) {
	if deps.Config.ScanSchedule == "" {
		return nil, errors.New("SCAN_SCHEDULE is empty")
	}
	return &Worker{
		scheduler: worker.NewScanScheduler(deps.ScanService, deps.Config.ScanSchedule, logger.Component("scheduler")),
	}, nil
}

func (w *Worker) Start() error {
	return w.scheduler.Start()
}

func (w *Worker) Stop() {
	w.scheduler.Stop()
}

// RunScanOnce runs a single scan and writes the summary as JSON.
func RunScanOnce(ctx context.Context, deps *Dependencies, out io.Writer) error {
	start := time.Now()
	summary, err := deps.ScanService.RunScan(ctx)
	if summary != nil {
		logger.WithDuration(time.Since(start)).
			WithField("scan_id", summary.ScanID).
			Info("One-shot scan complete: %d processed, %d skipped, %d failed",
				summary.ProcessedCount, summary.SkippedCount, summary.FailedCount)
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}

// PrepareEvalConfig turns the response cache on for evaluation runs so
// repeated runs do not call the model again.
func PrepareEvalConfig(cfg *config.Config) {
	if cfg.LLMCacheBackend == config.LLMCacheOff {
		cfg.LLMCacheBackend = config.LLMCacheSQLite
	}
}

// RunEval classifies the labelled fixtures and prints the report.
func RunEval(ctx context.Context, deps *Dependencies, out io.Writer) (*classification.EvalReport, error) {
	report, err := deps.Classifier.Evaluate(ctx, classification.EvalCases())
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprint(out, report.String()); err != nil {
		return nil, err
	}
	return report, nil
}
