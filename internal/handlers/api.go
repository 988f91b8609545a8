package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
)

// OfflineReporter reports the connectivity gate
type OfflineReporter interface {
	IsOffline() bool
}

// ClientCounter reports connected stream clients
type ClientCounter interface {
	ClientCount() int
}

type APIHandler struct {
	logger  arbor.ILogger
	offline OfflineReporter
	clients ClientCounter
}

// NewAPIHandler creates the system handler; clients may be nil
func NewAPIHandler(offline OfflineReporter, clients ClientCounter, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:  logger,
		offline: offline,
		clients: clients,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	offline := false
	if h.offline != nil {
		offline = h.offline.IsOffline()
	}

	wsClients := 0
	if h.clients != nil {
		wsClients = h.clients.ClientCount()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"offline":    offline,
		"ws_clients": wsClients,
		"goroutines": common.GetGoroutineCount(),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
