package api

import (
	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/infrastructure"
	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
)

// Runtime extends Infrastructure with the settings the API domain needs.
type Runtime struct {
	*infrastructure.Infrastructure
	MaxUploadSize int64
	Pipeline      *pipeline.Config
	Retention     *jobs.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		MaxUploadSize:  cfg.API.MaxUploadSizeBytes(),
		Pipeline:       &cfg.Pipeline,
		Retention:      &cfg.Jobs,
	}
}
