// -----------------------------------------------------------------------
// Last Modified: Wednesday, 14th October 2026 4:40:51 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Search
	mux.HandleFunc("/api/search", s.handleSearchRoute)               // POST (submit), DELETE (clear)
	mux.HandleFunc("/api/state", s.app.SearchHandler.StateHandler)   // GET - current snapshot
	mux.HandleFunc("/api/select", s.app.SearchHandler.SelectHandler) // POST - resolve a prediction

	// API routes - History
	mux.HandleFunc("/api/history", s.handleHistoryRoute)   // GET (list), DELETE (clear)
	mux.HandleFunc("/api/history/", s.handleHistoryRoutes) // GET/DELETE /{id}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for everything else
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSearchRoute routes /api/search requests
func (s *Server) handleSearchRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodPost:   s.app.SearchHandler.SubmitHandler,
		http.MethodDelete: s.app.SearchHandler.ClearHandler,
	})
}

// handleHistoryRoute routes /api/history requests (list and clear)
func (s *Server) handleHistoryRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.HistoryHandler.ListHandler, nil, s.app.HistoryHandler.ClearHandler)
}

// handleHistoryRoutes routes /api/history/{id} requests
func (s *Server) handleHistoryRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, s.app.HistoryHandler.ShowHandler, s.app.HistoryHandler.DeleteHandler)
}
