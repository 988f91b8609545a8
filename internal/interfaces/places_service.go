package interfaces

import (
	"context"

	"github.com/ternarybob/locus/internal/models"
)

// PlacesService defines lookups against the places provider
type PlacesService interface {
	// Search returns predictions for query. Establishment matches are preferred,
	// then address matches, with an unrestricted search as the failure fallback.
	// bias may be nil.
	Search(ctx context.Context, query string, bias *models.LocationBias) ([]models.Prediction, error)

	// ResolveDetails fetches name, address, coordinates and types for a place id
	ResolveDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error)
}
