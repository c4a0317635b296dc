package api

import (
	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
	"github.com/JaimeStill/folio/pkg/lifecycle"
)

// Domain holds the systems behind the job API.
type Domain struct {
	Runner  *pipeline.Runner
	Sweeper *jobs.Sweeper
	Jobs    *jobs.Handler
}

// NewDomain wires the runner as the handler's submitter so that accepted
// jobs go straight to the worker pool.
func NewDomain(runtime *Runtime) *Domain {
	runner := pipeline.New(
		runtime.Jobs,
		runtime.Resolver,
		runtime.Pipeline,
		runtime.Logger,
	)

	return &Domain{
		Runner:  runner,
		Sweeper: jobs.NewSweeper(runtime.Jobs, runtime.Storage, runtime.Retention, runtime.Logger),
		Jobs: jobs.NewHandler(
			runtime.Jobs,
			runner,
			runtime.Resolver,
			runtime.Logger,
			runtime.MaxUploadSize,
		),
	}
}

// Start launches the worker pool and the retention sweeper.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.Runner.Start(lc); err != nil {
		return err
	}
	return d.Sweeper.Start(lc)
}
