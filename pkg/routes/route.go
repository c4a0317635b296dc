package routes

import "net/http"

// Route binds a method and a path pattern relative to its group.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
