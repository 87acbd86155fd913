package model

import (
	"fmt"
	"time"

	"incident-analyzer/internal/domain"
)

type Stage string

const (
	StageQueued             Stage = "queued"
	StageTriaging           Stage = "triaging"
	StageRetrieving         Stage = "retrieving"
	StageAnalyzingRootCause Stage = "analyzing_root_cause"
	StageSynthesizing       Stage = "synthesizing"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

// pipeline is the only legal order of non-failed stages.
var pipeline = []Stage{
	StageQueued,
	StageTriaging,
	StageRetrieving,
	StageAnalyzingRootCause,
	StageSynthesizing,
	StageComplete,
}

var checkpoints = map[Stage]int{
	StageQueued:             0,
	StageTriaging:           20,
	StageRetrieving:         50,
	StageAnalyzingRootCause: 75,
	StageSynthesizing:       90,
	StageComplete:           100,
}

// Progress returns the fixed progress checkpoint for a stage.
func (s Stage) Progress() int { return checkpoints[s] }

func (s Stage) Terminal() bool { return s == StageComplete || s == StageFailed }

// Next returns the stage that follows s in the pipeline.
func (s Stage) Next() (Stage, bool) {
	for i, st := range pipeline {
		if st == s && i+1 < len(pipeline) {
			return pipeline[i+1], true
		}
	}
	return "", false
}

// Job is the unit of work for one analysis request.
type Job struct {
	ID        string    `json:"job_id"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	FileRefs  []string  `json:"file_refs"`
}

func NewJob(id string, fileRefs []string, now time.Time) (*Job, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	refs := make([]string, len(fileRefs))
	copy(refs, fileRefs)
	return &Job{
		ID:        id,
		Stage:     StageQueued,
		Progress:  StageQueued.Progress(),
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
		FileRefs:  refs,
	}, nil
}

// Advance moves the job to the next pipeline stage. Skipping or revisiting a
// stage is rejected with ErrInvalidTransition.
func (j *Job) Advance(to Stage, message string, now time.Time) error {
	next, ok := j.Stage.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Stage, to)
	}
	j.Stage = to
	if p := to.Progress(); p > j.Progress {
		j.Progress = p
	}
	j.Message = message
	j.touch(now)
	return nil
}

// Fail moves a non-terminal job to StageFailed. Progress is left where it was.
func (j *Job) Fail(message string, now time.Time) error {
	if j.Stage.Terminal() {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Stage, StageFailed)
	}
	j.Stage = StageFailed
	j.Message = message
	j.touch(now)
	return nil
}

// touch keeps UpdatedAt strictly increasing even when the clock is coarse.
func (j *Job) touch(now time.Time) {
	if !now.After(j.UpdatedAt) {
		now = j.UpdatedAt.Add(time.Nanosecond)
	}
	j.UpdatedAt = now
}

// Clone returns a copy that shares nothing mutable with j.
func (j Job) Clone() Job {
	refs := make([]string, len(j.FileRefs))
	copy(refs, j.FileRefs)
	j.FileRefs = refs
	return j
}
