// File: internal/usecase/analysis_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/repository"
	portuc "incident-analyzer/internal/domain/ports/usecase"
	"incident-analyzer/internal/infra/logging"
	"incident-analyzer/internal/infra/metrics"
	"incident-analyzer/internal/infra/worker"
)

// Compile-time checks
var (
	_ AnalysisUseCase   = (*analysisUC)(nil)
	_ portuc.JobSweeper = (*analysisUC)(nil)
)

// AnalysisUseCase sequences triage, retrieval and synthesis for each job and
// serves its status, result and follow-up questions.
type AnalysisUseCase interface {
	Submit(ctx context.Context, files []model.SourceFile) (model.Job, error)
	Run(ctx context.Context, jobID string) error
	Status(ctx context.Context, jobID string) (model.Job, error)
	Result(ctx context.Context, jobID string) (model.IncidentSummary, error)
	QueryText(ctx context.Context, jobID string) (string, error)
	Ask(ctx context.Context, jobID, question string) (model.QnAResponse, error)
	Cancel(ctx context.Context, jobID string) (model.Job, error)
	List(ctx context.Context) ([]model.Job, error)
	FailStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// Submitter hands a job's pipeline run to background execution.
type Submitter interface {
	Submit(task worker.Task) error
}

// AskLimiter throttles follow-up questions per job.
type AskLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Pipeline groups the stage components run for every job.
type Pipeline struct {
	Extractor   *SignalExtractor
	Retriever   *ContextRetriever
	Synthesizer *ReportSynthesizer
	Answerer    *QuestionAnswerer
}

type PipelineOptions struct {
	TopK       int
	JobTimeout time.Duration
}

type analysisUC struct {
	jobs    repository.JobRepository
	scratch repository.ScratchStore
	p       Pipeline
	pool    Submitter
	limiter AskLimiter
	opts    PipelineOptions
	log     *zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewAnalysisUseCase wires the orchestrator. limiter may be nil.
func NewAnalysisUseCase(
	jobs repository.JobRepository,
	scratch repository.ScratchStore,
	p Pipeline,
	pool Submitter,
	limiter AskLimiter,
	opts PipelineOptions,
	logger *zerolog.Logger,
) *analysisUC {
	return &analysisUC{
		jobs:    jobs,
		scratch: scratch,
		p:       p,
		pool:    pool,
		limiter: limiter,
		opts:    opts,
		log:     logger,
		now:     time.Now,
		newID:   func() string { return strings.ToLower(ulid.Make().String()) },
	}
}

func (uc *analysisUC) Submit(ctx context.Context, files []model.SourceFile) (model.Job, error) {
	id := uc.newID()
	refs, err := uc.scratch.SaveUploads(ctx, id, files)
	if err != nil {
		return model.Job{}, fmt.Errorf("save uploads: %w", err)
	}
	job, err := model.NewJob(id, refs, uc.now())
	if err != nil {
		return model.Job{}, err
	}
	if err := uc.jobs.Create(ctx, &model.JobRecord{Job: *job}); err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}
	metrics.IncStageTransition(string(model.StageQueued))

	err = uc.pool.Submit(func(ctx context.Context) error {
		return uc.Run(logging.WithJobID(ctx, id), id)
	})
	if err != nil {
		uc.log.Warn().Err(err).Str("job_id", id).Msg("could not queue job")
		_ = uc.fail(ctx, id, "Job queue is full; resubmit later.")
		return model.Job{}, fmt.Errorf("queue job %s: %w", id, domain.ErrQueueFull)
	}
	uc.log.Info().Str("job_id", id).Int("files", len(refs)).Msg("job queued")
	return job.Clone(), nil
}

// Run executes the pipeline for one job. Component failures degrade to
// best-effort artifacts; only scratch storage failures fail the job.
func (uc *analysisUC) Run(ctx context.Context, jobID string) error {
	log := logging.With(logging.WithJobID(ctx, jobID), uc.log)
	defer logging.TraceDuration(log, "Analysis.Run")()
	if uc.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.JobTimeout)
		defer cancel()
	}

	// triaging
	if err := uc.advance(ctx, jobID, model.StageTriaging, "Extracting signal lines from uploads"); err != nil {
		return err
	}
	rec, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	files, skipped, err := uc.scratch.LoadUploads(ctx, jobID, rec.Job.FileRefs)
	if err != nil {
		return uc.fail(ctx, jobID, "Cannot read uploaded files: "+err.Error())
	}
	cache, skippedTriage := uc.extract(log, files)
	skipped = append(skipped, skippedTriage...)
	if len(skipped) > 0 {
		log.Info().Strs("skipped", skipped).Msg("files skipped during triage")
	}
	if err := uc.scratch.WriteQueryText(ctx, jobID, cache.QueryText); err != nil {
		return uc.fail(ctx, jobID, "Cannot persist triage query: "+err.Error())
	}
	if err := uc.store(ctx, jobID, func(r *model.JobRecord) { r.Signals = &cache }); err != nil {
		return err
	}

	// retrieving
	if err := uc.advance(ctx, jobID, model.StageRetrieving, "Searching for similar past incidents"); err != nil {
		return err
	}
	related := uc.retrieve(ctx, log, cache.QueryText)
	if err := uc.store(ctx, jobID, func(r *model.JobRecord) { r.Related = related }); err != nil {
		return err
	}

	// analyzing_root_cause is a reporting checkpoint only
	if err := uc.advance(ctx, jobID, model.StageAnalyzingRootCause, "Correlating evidence with related incidents"); err != nil {
		return err
	}

	// synthesizing
	if err := uc.advance(ctx, jobID, model.StageSynthesizing, "Writing the incident report"); err != nil {
		return err
	}
	summary := uc.synthesize(ctx, log, cache.TopLines, related)

	var cancelled bool
	err = uc.jobs.Mutate(ctx, jobID, func(r *model.JobRecord) error {
		if r.Cancelled {
			cancelled = true
			return r.Job.Fail("Cancelled", uc.now())
		}
		r.Summary = &summary
		return r.Job.Advance(model.StageComplete, "Analysis complete", uc.now())
	})
	if err != nil {
		return err
	}
	if cancelled {
		uc.finished(jobID, model.StageFailed, "")
		return domain.ErrCancelled
	}
	metrics.IncStageTransition(string(model.StageComplete))
	uc.finished(jobID, model.StageComplete, summary.Provenance)
	log.Info().Str("provenance", summary.Provenance).Float64("confidence", summary.Confidence).Msg("job complete")
	return nil
}

// advance moves the job one stage forward unless it was cancelled, in which
// case the job fails and ErrCancelled is returned.
func (uc *analysisUC) advance(ctx context.Context, jobID string, to model.Stage, msg string) error {
	var cancelled bool
	err := uc.jobs.Mutate(ctx, jobID, func(r *model.JobRecord) error {
		if r.Cancelled {
			cancelled = true
			return r.Job.Fail("Cancelled", uc.now())
		}
		return r.Job.Advance(to, msg, uc.now())
	})
	if err != nil {
		return err
	}
	if cancelled {
		uc.finished(jobID, model.StageFailed, "")
		return domain.ErrCancelled
	}
	metrics.IncStageTransition(string(to))
	return nil
}

func (uc *analysisUC) store(ctx context.Context, jobID string, set func(r *model.JobRecord)) error {
	return uc.jobs.Mutate(ctx, jobID, func(r *model.JobRecord) error {
		set(r)
		return nil
	})
}

// fail moves the job to failed and returns the error Run should report.
func (uc *analysisUC) fail(ctx context.Context, jobID, msg string) error {
	// a job timeout must not stop the failure from being recorded
	ctx = context.WithoutCancel(ctx)
	err := uc.jobs.Mutate(ctx, jobID, func(r *model.JobRecord) error {
		return r.Job.Fail(msg, uc.now())
	})
	if err != nil {
		return err
	}
	metrics.IncStageTransition(string(model.StageFailed))
	uc.finished(jobID, model.StageFailed, "")
	uc.log.Error().Str("job_id", jobID).Str("reason", msg).Msg("job failed")
	return errors.New(msg)
}

func (uc *analysisUC) finished(jobID string, stage model.Stage, provenance string) {
	rec, err := uc.jobs.Get(context.Background(), jobID)
	if err != nil {
		return
	}
	metrics.ObserveJobFinished(string(stage), provenance, rec.Job.UpdatedAt.Sub(rec.Job.CreatedAt))
}

// The three stage wrappers below turn a component panic into a best-effort
// artifact so the job still completes.

func (uc *analysisUC) extract(log *zerolog.Logger, files []model.SourceFile) (cache model.SignalCache, skipped []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("signal extraction panicked; continuing without evidence")
			metrics.IncFallback("orchestrator")
			cache = model.SignalCache{TopLines: []model.SignalLine{}}
			skipped = nil
		}
	}()
	return uc.p.Extractor.Extract(files)
}

func (uc *analysisUC) retrieve(ctx context.Context, log *zerolog.Logger, query string) (out model.RetrievalResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("retrieval panicked; continuing without related incidents")
			metrics.IncFallback("orchestrator")
			out = model.RetrievalResult{}
		}
	}()
	return uc.p.Retriever.Retrieve(ctx, query, uc.opts.TopK)
}

func (uc *analysisUC) synthesize(ctx context.Context, log *zerolog.Logger, lines []model.SignalLine, related model.RetrievalResult) (out model.IncidentSummary) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("synthesis panicked; using rule-based report")
			metrics.IncFallback("orchestrator")
			out = FallbackSummary(lines, related, DefaultGenerationOptions().MinReferenceScore, fmt.Sprintf("synthesis panic: %v", r))
		}
	}()
	return uc.p.Synthesizer.Synthesize(ctx, lines, related)
}

func (uc *analysisUC) Status(ctx context.Context, jobID string) (model.Job, error) {
	rec, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	return rec.Job, nil
}

func (uc *analysisUC) Result(ctx context.Context, jobID string) (model.IncidentSummary, error) {
	rec, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return model.IncidentSummary{}, err
	}
	if rec.Job.Stage != model.StageComplete || rec.Summary == nil {
		return model.IncidentSummary{}, fmt.Errorf("job %s is %s: %w", jobID, rec.Job.Stage, domain.ErrResultNotReady)
	}
	return *rec.Summary, nil
}

func (uc *analysisUC) QueryText(ctx context.Context, jobID string) (string, error) {
	if _, err := uc.jobs.Get(ctx, jobID); err != nil {
		return "", err
	}
	q, err := uc.scratch.ReadQueryText(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("job %s has not been triaged: %w", jobID, domain.ErrResultNotReady)
	}
	return q, err
}

func (uc *analysisUC) Ask(ctx context.Context, jobID, question string) (model.QnAResponse, error) {
	rec, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return model.QnAResponse{}, err
	}
	if uc.limiter != nil {
		ok, err := uc.limiter.Allow(ctx, "ask:"+jobID)
		if err != nil {
			// a broken limiter must not take Q&A down with it
			uc.log.Warn().Err(err).Str("job_id", jobID).Msg("ask rate limiter unavailable")
		} else if !ok {
			return model.QnAResponse{}, fmt.Errorf("job %s: %w", jobID, domain.ErrRateLimited)
		}
	}
	var lines []model.SignalLine
	if rec.Signals.Empty() {
		uc.log.Debug().Str("job_id", jobID).Str("stage", string(rec.Job.Stage)).Msg("no cached evidence for question")
	} else {
		lines = rec.Signals.TopLines
	}
	return uc.p.Answerer.Answer(ctx, question, lines, rec.Related)
}

// Cancel flags a job; the pipeline fails it at the next stage boundary.
func (uc *analysisUC) Cancel(ctx context.Context, jobID string) (model.Job, error) {
	var out model.Job
	err := uc.jobs.Mutate(ctx, jobID, func(r *model.JobRecord) error {
		if r.Job.Stage.Terminal() {
			return fmt.Errorf("job %s is %s: %w", jobID, r.Job.Stage, domain.ErrInvalidTransition)
		}
		r.Cancelled = true
		out = r.Job.Clone()
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}
	uc.log.Info().Str("job_id", jobID).Msg("job cancellation requested")
	return out, nil
}

func (uc *analysisUC) List(ctx context.Context) ([]model.Job, error) {
	return uc.jobs.List(ctx)
}

func (uc *analysisUC) FailStale(ctx context.Context, maxAge time.Duration) (int, error) {
	jobs, err := uc.jobs.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := uc.now().Add(-maxAge)
	n := 0
	for _, j := range jobs {
		if j.Stage.Terminal() || j.UpdatedAt.After(cutoff) {
			continue
		}
		err := uc.jobs.Mutate(ctx, j.ID, func(r *model.JobRecord) error {
			// re-check under the job lock
			if r.Job.Stage.Terminal() || r.Job.UpdatedAt.After(cutoff) {
				return errSkip
			}
			return r.Job.Fail(fmt.Sprintf("Timed out in stage %s", r.Job.Stage), uc.now())
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return n, err
		}
		metrics.IncStageTransition(string(model.StageFailed))
		uc.finished(j.ID, model.StageFailed, "")
		n++
	}
	return n, nil
}

var errSkip = errors.New("skip")
