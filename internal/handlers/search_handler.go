package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/places"
	"github.com/ternarybob/locus/internal/services/selection"
)

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	Query     string               `json:"query" validate:"max=256"`
	Bias      *models.LocationBias `json:"bias,omitempty" validate:"omitempty"`
	ClearBias bool                 `json:"clear_bias,omitempty"` // drops any bias; wins over Bias
}

// SelectRequest is the body of POST /api/select
type SelectRequest struct {
	ID string `json:"id" validate:"required"`
}

// SearchResponse acknowledges a submitted query
type SearchResponse struct {
	Generation uint64             `json:"generation"`
	State      models.SearchState `json:"state"`
}

// SearchHandler feeds the search pipeline and exposes its state
type SearchHandler struct {
	pipeline SearchPipeline
	state    StateReader
	selector PlaceSelector
	logger   arbor.ILogger
}

func NewSearchHandler(pipeline SearchPipeline, state StateReader, selector PlaceSelector, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		pipeline: pipeline,
		state:    state,
		selector: selector,
		logger:   logger,
	}
}

// SubmitHandler handles POST /api/search. The lookup itself is asynchronous;
// watch /api/state or /ws for the outcome.
func (h *SearchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case req.ClearBias:
		h.pipeline.SetBias(nil)
	case req.Bias != nil:
		h.pipeline.SetBias(req.Bias)
	}
	generation := h.pipeline.Submit(req.Query)

	WriteJSON(w, http.StatusAccepted, SearchResponse{
		Generation: generation,
		State:      h.state.Snapshot(),
	})
}

// ClearHandler handles DELETE /api/search
func (h *SearchHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Clear()
	WriteJSON(w, http.StatusOK, h.state.Snapshot())
}

// StateHandler handles GET /api/state
func (h *SearchHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.state.Snapshot())
}

// SelectHandler handles POST /api/select
func (h *SearchHandler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req SelectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	place, err := h.selector.SelectByID(r.Context(), req.ID)
	if errors.Is(err, selection.ErrPredictionNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("place_id", req.ID).Msg("Selection failed")
		WriteError(w, selectErrorStatus(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, place)
}

// selectErrorStatus maps a details failure to a status: an unreachable
// provider is 503, a provider refusal is 502
func selectErrorStatus(err error) int {
	switch {
	case places.IsNetworkError(err):
		return http.StatusServiceUnavailable
	case places.IsProviderError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
