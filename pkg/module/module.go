// Package module mounts self-contained HTTP sub-applications under a
// single-level path prefix, each with its own middleware stack.
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JaimeStill/folio/pkg/middleware"
)

// Module strips its prefix from incoming paths and delegates to an inner
// router wrapped in the module's middleware.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
}

// New creates a Module for prefix (e.g. "/api"). The prefix must be a
// single path segment with a leading slash.
func New(prefix string, router http.Handler) (*Module, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}, nil
}

// Handler returns the inner router wrapped with the module's middleware.
func (m *Module) Handler() http.Handler {
	return m.middleware.Apply(m.router)
}

func (m *Module) Prefix() string {
	return m.prefix
}

// Serve dispatches req to the inner router with the prefix removed.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, withPath(req, stripPrefix(req.URL.Path, m.prefix)))
}

// Use appends mw to the module's middleware stack.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
}

func withPath(req *http.Request, path string) *http.Request {
	r := req.Clone(req.Context())
	r.URL = new(url.URL)
	*r.URL = *req.URL
	r.URL.Path = path
	r.URL.RawPath = ""
	return r
}

func stripPrefix(fullPath, prefix string) string {
	path := strings.TrimPrefix(fullPath, prefix)
	if path == "" {
		return "/"
	}
	return path
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Count(prefix, "/") != 1 || prefix == "/":
		return fmt.Errorf("module prefix must be a single path segment: %s", prefix)
	}
	return nil
}
