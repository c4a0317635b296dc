// Package middleware provides the HTTP middleware stack applied to mounted
// modules: request logging, panic recovery, and CORS.
package middleware

import "net/http"

// System is an ordered middleware stack. The first middleware added is the
// outermost.
type System interface {
	Use(mw func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	layers []func(http.Handler) http.Handler
}

// New creates a stack seeded with layers, outermost first.
func New(layers ...func(http.Handler) http.Handler) System {
	return &stack{layers: layers}
}

func (s *stack) Use(mw func(http.Handler) http.Handler) {
	s.layers = append(s.layers, mw)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.layers) - 1; i >= 0; i-- {
		handler = s.layers[i](handler)
	}
	return handler
}
