// Package api assembles the job API module: domain systems, routes, and
// module middleware.
package api

import (
	"net/http"

	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/infrastructure"
	"github.com/JaimeStill/folio/pkg/lifecycle"
	"github.com/JaimeStill/folio/pkg/middleware"
	"github.com/JaimeStill/folio/pkg/module"
)

// API is the mounted job module together with the domain systems that
// must be started alongside it.
type API struct {
	Module *module.Module
	Domain *Domain
}

// New builds the API module under cfg.API.BasePath.
func New(cfg *config.Config, infra *infrastructure.Infrastructure) (*API, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	mux := http.NewServeMux()
	patterns := registerRoutes(mux, domain)

	m, err := module.New(cfg.API.BasePath, mux)
	if err != nil {
		return nil, err
	}
	m.Use(middleware.Recover(runtime.Logger))
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	runtime.Logger.Debug("routes registered", "prefix", m.Prefix(), "routes", patterns)

	return &API{Module: m, Domain: domain}, nil
}

// Start launches the domain's background systems.
func (a *API) Start(lc *lifecycle.Coordinator) error {
	return a.Domain.Start(lc)
}
