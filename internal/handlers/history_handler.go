package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/services/history"
	"github.com/ternarybob/locus/internal/services/selection"
)

// persistenceWarning is returned when a history edit applied in memory but was not saved
const persistenceWarning = "history change may not have been saved"

// HistoryHandler serves the selection history
type HistoryHandler struct {
	state    StateReader
	selector PlaceSelector
	logger   arbor.ILogger
}

func NewHistoryHandler(state StateReader, selector PlaceSelector, logger arbor.ILogger) *HistoryHandler {
	return &HistoryHandler{
		state:    state,
		selector: selector,
		logger:   logger,
	}
}

// ListHandler handles GET /api/history
func (h *HistoryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.state.Snapshot().History)
}

// ClearHandler handles DELETE /api/history
func (h *HistoryHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.selector.Clear(r.Context()); err != nil {
		h.writeEditError(w, err)
		return
	}
	WriteSuccess(w, "History cleared")
}

// ShowHandler handles GET /api/history/{id}
func (h *HistoryHandler) ShowHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/history/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "history id is required")
		return
	}

	place, err := h.selector.ShowHistoryEntry(id)
	if errors.Is(err, selection.ErrHistoryEntryNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, place)
}

// DeleteHandler handles DELETE /api/history/{id}
func (h *HistoryHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/history/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "history id is required")
		return
	}

	if err := h.selector.Remove(r.Context(), id); err != nil {
		h.writeEditError(w, err)
		return
	}
	WriteSuccess(w, "History entry removed")
}

func (h *HistoryHandler) writeEditError(w http.ResponseWriter, err error) {
	var persistErr *history.PersistenceError
	if errors.As(err, &persistErr) {
		h.logger.Error().Err(err).Msg("History edit not persisted")
		WriteError(w, http.StatusInternalServerError, persistenceWarning)
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
