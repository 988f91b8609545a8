package server

import (
	"net/http"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method with standardized error handling
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// RouteResourceCollection handles the collection pattern
// GET -> list, POST -> create, DELETE -> clear
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create, clear RouteHandler) {
	RouteByMethod(w, r, methods(list, create, clear))
}

// RouteResourceItem handles the item pattern
// GET -> show, DELETE -> delete
func RouteResourceItem(w http.ResponseWriter, r *http.Request, show, delete RouteHandler) {
	RouteByMethod(w, r, methods(show, nil, delete))
}

func methods(get, post, delete RouteHandler) MethodRouter {
	routes := make(MethodRouter)
	if get != nil {
		routes[http.MethodGet] = get
	}
	if post != nil {
		routes[http.MethodPost] = post
	}
	if delete != nil {
		routes[http.MethodDelete] = delete
	}
	return routes
}
