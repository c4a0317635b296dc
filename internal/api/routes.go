package api

import (
	"net/http"

	"github.com/JaimeStill/folio/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain) []string {
	groups := []routes.Group{
		domain.Jobs.Routes(),
	}
	routes.Register(mux, groups...)
	return routes.Patterns(groups...)
}
