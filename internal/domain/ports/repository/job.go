package repository

import (
	"context"

	"incident-analyzer/internal/domain/model"
)

// JobRepository is the keyed job store. Mutate runs fn while holding the job's
// exclusive lock; Get returns a snapshot that never observes a half-applied
// mutation.
type JobRepository interface {
	Create(ctx context.Context, rec *model.JobRecord) error
	Get(ctx context.Context, jobID string) (model.JobRecord, error)
	Mutate(ctx context.Context, jobID string, fn func(rec *model.JobRecord) error) error
	List(ctx context.Context) ([]model.Job, error)
}
