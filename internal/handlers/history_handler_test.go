package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/history"
	"github.com/ternarybob/locus/internal/services/selection"
	"github.com/ternarybob/locus/internal/services/state"
)

func newHistoryHandler(selector *mockSelector) (*HistoryHandler, *state.Store) {
	logger := arbor.NewLogger()
	store := state.NewStore(logger)
	return NewHistoryHandler(store, selector, logger), store
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHistoryListHandler(t *testing.T) {
	handler, store := newHistoryHandler(&mockSelector{})
	store.SetHistory([]models.ResolvedPlace{{ID: "a", Name: "A", Lat: coord(1), Lng: coord(2)}})

	rec := httptest.NewRecorder()
	handler.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.ResolvedPlace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestHistoryListHandler_EmptyIsArray(t *testing.T) {
	handler, _ := newHistoryHandler(&mockSelector{})

	rec := httptest.NewRecorder()
	handler.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryDeleteHandler(t *testing.T) {
	var removed string
	handler, _ := newHistoryHandler(&mockSelector{
		removeFunc: func(ctx context.Context, id string) error {
			removed = id
			return nil
		},
	})

	rec := httptest.NewRecorder()
	handler.DeleteHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/history/abc", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", removed)

	rec = httptest.NewRecorder()
	handler.DeleteHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/history/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEdits_SurfacePersistenceFailure(t *testing.T) {
	persistErr := &history.PersistenceError{Key: "placeHistory", Err: errors.New("disk full")}
	handler, _ := newHistoryHandler(&mockSelector{
		removeFunc: func(ctx context.Context, id string) error { return persistErr },
		clearFunc:  func(ctx context.Context) error { return persistErr },
	})

	rec := httptest.NewRecorder()
	handler.DeleteHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/history/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, persistenceWarning, decodeError(t, rec))

	rec = httptest.NewRecorder()
	handler.ClearHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, persistenceWarning, decodeError(t, rec))
}

func TestHistoryShowHandler(t *testing.T) {
	handler, _ := newHistoryHandler(&mockSelector{
		showFunc: func(id string) (*models.ResolvedPlace, error) {
			if id == "a" {
				return &models.ResolvedPlace{ID: "a", Name: "A", Lat: coord(1), Lng: coord(2)}, nil
			}
			return nil, selection.ErrHistoryEntryNotFound
		},
	})

	rec := httptest.NewRecorder()
	handler.ShowHandler(rec, httptest.NewRequest(http.MethodGet, "/api/history/a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ShowHandler(rec, httptest.NewRequest(http.MethodGet, "/api/history/b", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
