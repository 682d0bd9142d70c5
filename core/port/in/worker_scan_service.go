package in

import (
	"context"

	"triage_worker/core/domain"
)

// ScanService runs triage scans for the connected mailbox.
type ScanService interface {
	// RunScan processes messages received since the stored watermark.
	RunScan(ctx context.Context) (*domain.ScanSummary, error)

	// Reset clears the watermark and every dedup marker, returning how many markers were deleted.
	Reset(ctx context.Context) (int, error)
}
