package handlers

import (
	"context"

	"github.com/ternarybob/locus/internal/models"
)

// SearchPipeline accepts query text for debounced searching
type SearchPipeline interface {
	Submit(query string) uint64
	Clear()
	SetBias(bias *models.LocationBias)
}

// StateReader exposes the current search state
type StateReader interface {
	Snapshot() models.SearchState
}

// PlaceSelector resolves predictions and edits history
type PlaceSelector interface {
	SelectByID(ctx context.Context, id string) (*models.ResolvedPlace, error)
	ShowHistoryEntry(id string) (*models.ResolvedPlace, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}
