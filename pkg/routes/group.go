// Package routes declares HTTP endpoints as nested prefix groups and
// registers them on a ServeMux using method-qualified patterns.
package routes

import "net/http"

// Group collects routes under a shared prefix. Child prefixes are appended
// to the parent's.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route in groups to mux.
func Register(mux *http.ServeMux, groups ...Group) {
	walk(groups, func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, h)
	})
}

// Patterns lists the method-qualified patterns groups would register, in
// declaration order.
func Patterns(groups ...Group) []string {
	var out []string
	walk(groups, func(pattern string, _ http.HandlerFunc) {
		out = append(out, pattern)
	})
	return out
}

func walk(groups []Group, fn func(pattern string, h http.HandlerFunc)) {
	for _, g := range groups {
		walkGroup("", g, fn)
	}
}

func walkGroup(parent string, g Group, fn func(string, http.HandlerFunc)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		fn(r.Method+" "+prefix+r.Pattern, r.Handler)
	}
	for _, child := range g.Children {
		walkGroup(prefix, child, fn)
	}
}
