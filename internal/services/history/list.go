package history

import (
	"time"

	"github.com/ternarybob/locus/internal/models"
)

// MaxEntries is the default history capacity
const MaxEntries = 20

// SearchDateLayout is the ISO-8601 form stamped on each entry (UTC, millisecond precision)
const SearchDateLayout = "2006-01-02T15:04:05.000Z07:00"

// Add returns a new history with place at the front, stamped with now.
// Any existing entry with the same id is dropped first, and the result is
// cut to limit entries (MaxEntries when limit <= 0). Invalid places are ignored.
func Add(history []models.ResolvedPlace, place models.ResolvedPlace, now time.Time, limit int) []models.ResolvedPlace {
	if limit <= 0 {
		limit = MaxEntries
	}
	if !place.Valid() {
		return models.CloneHistory(history)
	}

	entry := place.Clone()
	entry.SearchDate = now.UTC().Format(SearchDateLayout)

	out := make([]models.ResolvedPlace, 0, len(history)+1)
	out = append(out, entry)
	for _, existing := range history {
		if existing.ID == place.ID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, existing.Clone())
	}
	return out
}

// Remove returns history without the entry matching id; unknown ids are a no-op
func Remove(history []models.ResolvedPlace, id string) []models.ResolvedPlace {
	out := make([]models.ResolvedPlace, 0, len(history))
	for _, existing := range history {
		if existing.ID != id {
			out = append(out, existing.Clone())
		}
	}
	return out
}

// Clear returns an empty history
func Clear() []models.ResolvedPlace {
	return []models.ResolvedPlace{}
}

// Find returns the entry with id
func Find(history []models.ResolvedPlace, id string) (models.ResolvedPlace, bool) {
	for _, existing := range history {
		if existing.ID == id {
			return existing.Clone(), true
		}
	}
	return models.ResolvedPlace{}, false
}
