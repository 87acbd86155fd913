package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo keeps job records in process memory. The map lock guards
// membership only; each record has its own lock so slow mutations of one job
// never block readers of another.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*slot
}

type slot struct {
	mu  sync.RWMutex
	rec model.JobRecord
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*slot)}
}

func (r *JobRepo) Create(ctx context.Context, rec *model.JobRecord) error {
	if rec == nil || rec.Job.ID == "" {
		return fmt.Errorf("create job: %w", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[rec.Job.ID]; ok {
		return fmt.Errorf("job %s: %w", rec.Job.ID, domain.ErrAlreadyExists)
	}
	r.jobs[rec.Job.ID] = &slot{rec: cloneRecord(*rec)}
	return nil
}

func (r *JobRepo) lookup(id string) (*slot, error) {
	r.mu.RLock()
	s, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (model.JobRecord, error) {
	s, err := r.lookup(id)
	if err != nil {
		return model.JobRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecord(s.rec), nil
}

// Mutate applies fn to a working copy and commits it only when fn succeeds,
// so a failed mutation leaves the record untouched.
func (r *JobRepo) Mutate(ctx context.Context, id string, fn func(rec *model.JobRecord) error) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := cloneRecord(s.rec)
	if err := fn(&work); err != nil {
		return err
	}
	s.rec = work
	return nil
}

// List returns job snapshots ordered by creation time, then id.
func (r *JobRepo) List(ctx context.Context) ([]model.Job, error) {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.jobs))
	for _, s := range r.jobs {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]model.Job, 0, len(slots))
	for _, s := range slots {
		s.mu.RLock()
		out = append(out, s.rec.Job.Clone())
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// cloneRecord copies the slices a caller could mutate. Cached artifacts are
// replaced wholesale and never edited in place, so their element values are
// shared.
func cloneRecord(rec model.JobRecord) model.JobRecord {
	out := rec
	out.Job = rec.Job.Clone()
	if rec.Signals != nil {
		sc := *rec.Signals
		sc.TopLines = append([]model.SignalLine(nil), rec.Signals.TopLines...)
		out.Signals = &sc
	}
	if rec.Related != nil {
		out.Related = append(model.RetrievalResult(nil), rec.Related...)
	}
	if rec.Summary != nil {
		sum := *rec.Summary
		out.Summary = &sum
	}
	return out
}
