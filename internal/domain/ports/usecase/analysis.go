package usecase

import (
	"context"
	"time"
)

// JobSweeper defines what background workers need from the analysis pipeline.
type JobSweeper interface {
	// FailStale fails non-terminal jobs whose last update is older than maxAge.
	FailStale(ctx context.Context, maxAge time.Duration) (int, error)
}
