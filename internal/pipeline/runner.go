package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/lifecycle"
	"github.com/JaimeStill/folio/pkg/storage"
	"github.com/JaimeStill/folio/pkg/tool"
)

// OutputPrefix is the key prefix for published artifacts.
const OutputPrefix = "outputs"

var stageMessages = map[string]string{
	StageRasterize: "Converting pages",
	StageCompose:   "Composing slides",
	StageEmit:      "Writing slide file",
	StageValidate:  "Validating images",
	StageManifest:  "Building manifest",
	StageAssemble:  "Assembling package",
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPlan replaces the stage sequence used for kind.
func WithPlan(kind jobs.Kind, stages ...Stage) Option {
	return func(r *Runner) {
		r.plans[kind] = stages
	}
}

// WithInvoker replaces the engine invoker constructed for each job
// workspace.
func WithInvoker(fn func(root string) tool.Invoker) Option {
	return func(r *Runner) {
		r.invoker = fn
	}
}

// Runner executes jobs from the store on a bounded worker pool. Each job's
// stages run sequentially; independent jobs run concurrently.
type Runner struct {
	store    jobs.Store
	resolver *storage.Resolver
	cfg      *Config
	logger   *slog.Logger
	plans    map[jobs.Kind][]Stage
	invoker  func(root string) tool.Invoker

	mu      sync.Mutex
	pending []uuid.UUID
	closed  bool
	notify  chan struct{}
}

// New creates a Runner. Nothing executes until Run, Start, or Execute is
// called.
func New(store jobs.Store, resolver *storage.Resolver, cfg *Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With("system", "pipeline"),
		plans:    make(map[jobs.Kind][]Stage),
		notify:   make(chan struct{}, 1),
	}
	r.invoker = func(root string) tool.Invoker {
		return tool.New(root, cfg.DiagnosticsCap, r.logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create records a new queued job without scheduling it.
func (r *Runner) Create(ctx context.Context, kind jobs.Kind, title string, refs []string) (*jobs.Job, error) {
	if _, err := r.plan(kind); err != nil {
		return nil, err
	}

	job, err := jobs.New(kind, title, refs)
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Submit records a new job and schedules it. It returns as soon as the job
// is queued.
func (r *Runner) Submit(ctx context.Context, kind jobs.Kind, title string, refs []string) (*jobs.Job, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	job, err := r.Create(ctx, kind, title, refs)
	if err != nil {
		return nil, err
	}

	r.enqueue(job.ID)
	r.logger.Info("job submitted", "job_id", job.ID, "kind", kind, "inputs", len(refs))
	return job, nil
}

// Start runs the dispatcher under the lifecycle coordinator.
func (r *Runner) Start(lc *lifecycle.Coordinator) error {
	r.logger.Info("starting job runner", "workers", r.cfg.Workers, "work_dir", r.cfg.WorkDir)

	lc.Go(func(ctx context.Context) {
		if err := r.Run(ctx); err != nil {
			r.logger.Error("job runner stopped", "error", err)
			return
		}
		r.logger.Info("job runner stopped")
	})
	return nil
}

// Run dispatches queued jobs until ctx is cancelled, then waits for
// in-flight jobs to reach a terminal state.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.reconcile(ctx); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	defer func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-r.notify:
		}

		for ctx.Err() == nil {
			id, ok := r.next()
			if !ok {
				break
			}

			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if err := r.Execute(ctx, id); err != nil {
					r.logger.Error("job execution failed", "job_id", id, "error", err)
				}
				return nil
			})
		}
	}
}

// Execute runs one queued job to a terminal state on the calling
// goroutine. The returned error reports store failures only; conversion
// failures are recorded on the job.
func (r *Runner) Execute(ctx context.Context, id uuid.UUID) error {
	sctx := context.WithoutCancel(ctx)

	job, err := r.store.Get(sctx, id)
	if err != nil {
		return err
	}
	if job.Phase != jobs.PhaseQueued {
		return fmt.Errorf("%w: job %s is %s", jobs.ErrInvariant, id, job.Phase)
	}

	logger := r.logger.With("job_id", id, "kind", job.Kind)

	stages, err := r.plan(job.Kind)
	if err != nil {
		return r.fail(sctx, logger, id, &jobs.Failure{Kind: jobs.ErrorInvalidInput, Message: err.Error()})
	}

	jobDir, err := os.MkdirTemp(r.cfg.WorkDir, "job-*")
	if err != nil {
		return r.fail(sctx, logger, id, Classify("", fmt.Errorf("create workspace: %w", err)))
	}
	defer os.RemoveAll(jobDir)

	invoker := r.invoker(jobDir)
	total := len(stages)

	var payload Payload
	for i, stage := range stages {
		name := stage.Name()

		f, err := r.checkCancel(ctx, sctx, id, name)
		if err != nil {
			return err
		}
		if f != nil {
			return r.fail(sctx, logger, id, f)
		}

		_, err = r.store.Update(sctx, id, func(j *jobs.Job) error {
			if err := j.Begin(i, name); err != nil {
				return err
			}
			return j.Advance(jobs.StageProgress(i, 0, total), stageMessages[name])
		})
		if err != nil {
			return err
		}

		out, f := r.runStage(ctx, logger, job, stage, i, total, payload, invoker, jobDir)
		if f != nil {
			return r.fail(sctx, logger, id, f)
		}
		payload = out
	}

	ref, err := r.publish(ctx, job, payload.Artifact)
	if err != nil {
		return r.fail(sctx, logger, id, Classify(stages[total-1].Name(), err))
	}

	if _, err := r.store.Update(sctx, id, func(j *jobs.Job) error { return j.Succeed(ref) }); err != nil {
		return err
	}

	logger.Info("job succeeded", "output_ref", ref)
	return nil
}

func (r *Runner) runStage(
	ctx context.Context,
	logger *slog.Logger,
	job *jobs.Job,
	stage Stage,
	index, total int,
	in Payload,
	invoker tool.Invoker,
	jobDir string,
) (Payload, *jobs.Failure) {
	name := stage.Name()
	sctx := context.WithoutCancel(ctx)
	budget := r.cfg.RetriesFor(name)

	for attempt := 1; ; attempt++ {
		attemptDir, err := os.MkdirTemp(jobDir, name+"-*")
		if err != nil {
			return Payload{}, Classify(name, fmt.Errorf("create stage workspace: %w", err))
		}

		at := &Attempt{
			JobID:   job.ID,
			Kind:    job.Kind,
			Title:   job.Title,
			WorkDir: attemptDir,
			Tools:   invoker,
			Timeout: r.cfg.TimeoutFor(name),
			Config:  r.cfg,
			Logger:  logger.With("stage", name, "attempt", attempt),
			progress: func(frac float64, message string) {
				_, err := r.store.Update(sctx, job.ID, func(j *jobs.Job) error {
					return j.Advance(jobs.StageProgress(index, frac, total), message)
				})
				if err != nil {
					logger.Warn("progress update failed", "stage", name, "error", err)
				}
			},
		}

		start := time.Now()
		out, runErr := r.attempt(ctx, job, stage, at, in, index == 0)
		rec := jobs.StageRecord{
			Stage:     name,
			Attempt:   attempt,
			Outcome:   jobs.OutcomeSucceeded,
			Duration:  time.Since(start),
			StartedAt: start.UTC(),
		}

		var f *jobs.Failure
		if runErr != nil {
			f = Classify(name, runErr)
			rec.Outcome = jobs.OutcomeFailed
			rec.ErrorKind = f.Kind
		}

		_, err = r.store.Update(sctx, job.ID, func(j *jobs.Job) error {
			if err := j.Record(rec); err != nil {
				return err
			}
			if f == nil {
				return j.Advance(jobs.StageProgress(index+1, 0, total), "")
			}
			return nil
		})
		if err != nil {
			return Payload{}, Classify(name, fmt.Errorf("record attempt: %w", err))
		}

		if f == nil {
			logger.Info("stage complete", "stage", name, "attempt", attempt, "duration", rec.Duration)
			return out, nil
		}

		logger.Warn(
			"stage attempt failed",
			"stage", name,
			"attempt", attempt,
			"error_kind", f.Kind,
			"error", f.Message,
		)

		if !f.Kind.Retryable() || attempt > budget || ctx.Err() != nil {
			return Payload{}, f
		}
	}
}

// attempt runs one stage attempt. The first stage's attempts also fetch the
// job's inputs, so a failed fetch is recorded against that stage.
func (r *Runner) attempt(ctx context.Context, job *jobs.Job, stage Stage, at *Attempt, in Payload, fetch bool) (Payload, error) {
	if fetch {
		inputs, err := r.fetchInputs(ctx, job, at.WorkDir)
		if err != nil {
			return Payload{}, err
		}
		in.Inputs = inputs
	}
	return attemptStage(ctx, stage, at, in)
}

// attemptStage runs one attempt and verifies its declared outputs. Stages
// that bound each engine invocation themselves are not given an overall
// deadline.
func attemptStage(ctx context.Context, stage Stage, at *Attempt, in Payload) (out Payload, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), p)
		}
	}()

	if _, ok := stage.(invocationBounded); !ok && at.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, at.Timeout)
		defer cancel()
	}

	out, err = stage.Run(ctx, at, in)
	if err != nil {
		return Payload{}, err
	}
	if err := verify(out); err != nil {
		return Payload{}, err
	}
	return out, nil
}

type invocationBounded interface {
	boundsInvocations()
}

func (Rasterize) boundsInvocations() {}

func (r *Runner) checkCancel(ctx, sctx context.Context, id uuid.UUID, stage string) (*jobs.Failure, error) {
	if ctx.Err() != nil {
		return &jobs.Failure{Kind: jobs.ErrorCancelled, Stage: stage, Message: "interrupted by shutdown"}, nil
	}

	snap, err := r.store.Get(sctx, id)
	if err != nil {
		return nil, err
	}
	if snap.CancelRequested {
		return &jobs.Failure{Kind: jobs.ErrorCancelled, Stage: stage, Message: "cancelled before " + stage}, nil
	}
	return nil, nil
}

func (r *Runner) fetchInputs(ctx context.Context, job *jobs.Job, dir string) ([]string, error) {
	inputs := make([]string, len(job.InputRefs))
	for i, ref := range job.InputRefs {
		dest := filepath.Join(dir, "inputs", fmt.Sprintf("input-%03d%s", i+1, path.Ext(ref)))
		p, err := r.resolver.Fetch(ctx, ref, dest)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: input %s not found", ErrInvalidInput, ref)
			}
			return nil, err
		}
		inputs[i] = p
	}
	return inputs, nil
}

func (r *Runner) publish(ctx context.Context, job *jobs.Job, artifact string) (string, error) {
	if artifact == "" {
		return "", fmt.Errorf("%w: no artifact produced", ErrIncompleteOutput)
	}
	key := path.Join(OutputPrefix, job.ID.String(), jobs.ArtifactName(job))
	return r.resolver.Register(ctx, key, artifact)
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, id uuid.UUID, f *jobs.Failure) error {
	if _, err := r.store.Update(ctx, id, func(j *jobs.Job) error { return j.Fail(f) }); err != nil {
		return err
	}
	logger.Warn("job failed", "stage", f.Stage, "error_kind", f.Kind, "error", f.Message)
	return nil
}

// reconcile prepares a shared store for dispatch: jobs left Running by a
// previous process are failed, and Queued jobs are scheduled again.
func (r *Runner) reconcile(ctx context.Context) error {
	running, err := r.store.ListByPhase(ctx, jobs.PhaseRunning)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	for _, j := range running {
		f := &jobs.Failure{Kind: jobs.ErrorCancelled, Stage: j.StageName, Message: "interrupted by restart"}
		if err := r.fail(ctx, r.logger.With("job_id", j.ID), j.ID, f); err != nil {
			r.logger.Warn("orphaned job not failed", "job_id", j.ID, "error", err)
		}
	}

	queued, err := r.store.ListByPhase(ctx, jobs.PhaseQueued)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	for _, j := range queued {
		r.enqueue(j.ID)
	}
	if len(queued) > 0 {
		r.logger.Info("requeued jobs", "count", len(queued))
	}
	return nil
}

func (r *Runner) plan(kind jobs.Kind) ([]Stage, error) {
	if stages, ok := r.plans[kind]; ok {
		return stages, nil
	}
	return Plan(kind)
}

func (r *Runner) enqueue(id uuid.UUID) {
	r.mu.Lock()
	r.pending = append(r.pending, id)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Runner) next() (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return uuid.Nil, false
	}
	id := r.pending[0]
	r.pending = r.pending[1:]
	return id, true
}
