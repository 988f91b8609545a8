package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/history"
	"github.com/ternarybob/locus/internal/services/state"
)

var (
	// ErrPredictionNotFound is returned when an id is not in the current results
	ErrPredictionNotFound = errors.New("prediction not found in current results")

	// ErrHistoryEntryNotFound is returned when an id is not in history
	ErrHistoryEntryNotFound = errors.New("history entry not found")
)

// DetailsErrorPrefix prefixes the state error when a detail fetch fails
const DetailsErrorPrefix = "Failed to fetch place details: "

// SearchResetter clears the active search once a place is chosen
type SearchResetter interface {
	Clear()
}

// Service turns predictions into history entries and manages history edits.
// History changes are applied to the state store first, then persisted.
type Service struct {
	places       interfaces.PlacesService
	history      *history.Service
	store        *state.Store
	search       SearchResetter
	eventService interfaces.EventService
	logger       arbor.ILogger
	now          func() time.Time

	// serializes read-modify-write of history and its persist
	mu sync.Mutex
}

// NewService creates the selection service; search and eventService may be nil
func NewService(
	places interfaces.PlacesService,
	historyService *history.Service,
	store *state.Store,
	search SearchResetter,
	eventService interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		places:       places,
		history:      historyService,
		store:        store,
		search:       search,
		eventService: eventService,
		logger:       logger,
		now:          time.Now,
	}
}

// Restore loads persisted history into state
func (s *Service) Restore(ctx context.Context) []models.ResolvedPlace {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := s.history.Load(ctx)
	s.store.SetHistory(loaded)

	s.logger.Info().Int("entries", len(loaded)).Msg("History restored")
	return loaded
}

// SelectByID selects a prediction from the current results
func (s *Service) SelectByID(ctx context.Context, id string) (*models.ResolvedPlace, error) {
	snapshot := s.store.Snapshot()
	for _, prediction := range snapshot.Results {
		if prediction.ID == id {
			return s.Select(ctx, prediction)
		}
	}
	return nil, ErrPredictionNotFound
}

// Select resolves the prediction's details, makes it the selected place and
// records it in history. A failed persist is logged but does not fail the
// selection; the in-memory history already holds the entry.
func (s *Service) Select(ctx context.Context, prediction models.Prediction) (*models.ResolvedPlace, error) {
	s.store.Update(func(st *models.SearchState) bool {
		st.Loading = true
		st.Error = ""
		return true
	})

	details, err := s.places.ResolveDetails(ctx, prediction.ID)
	if err != nil {
		message := DetailsErrorPrefix + err.Error()
		s.store.Update(func(st *models.SearchState) bool {
			st.Loading = false
			st.Error = message
			return true
		})
		s.logger.Warn().Err(err).Str("place_id", prediction.ID).Msg("Failed to resolve place details")
		return nil, fmt.Errorf("failed to resolve place %s: %w", prediction.ID, err)
	}

	place := models.NewResolvedPlace(prediction, details)
	selected := s.record(ctx, place)

	if s.search != nil {
		s.search.Clear()
	}
	s.store.Update(func(st *models.SearchState) bool {
		if !st.Loading {
			return false
		}
		st.Loading = false
		return true
	})

	s.logger.Info().
		Str("place_id", selected.ID).
		Str("name", selected.DisplayName()).
		Msg("Place selected")

	s.publishEvent(interfaces.EventPlaceSelected, map[string]interface{}{
		"place_id": selected.ID,
	})

	return &selected, nil
}

// record adds place to history, selects it and persists best-effort
func (s *Service) record(ctx context.Context, place models.ResolvedPlace) models.ResolvedPlace {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := history.Add(s.store.Snapshot().History, place, s.now(), s.history.Limit())
	selected := place
	if len(updated) > 0 && updated[0].ID == place.ID {
		selected = updated[0]
	}

	s.store.Update(func(st *models.SearchState) bool {
		current := selected.Clone()
		st.SelectedPlace = &current
		st.History = models.CloneHistory(updated)
		return true
	})

	if err := s.history.Persist(ctx, updated); err != nil {
		s.logger.Warn().Err(err).Str("place_id", place.ID).Msg("History not saved after selection")
	} else {
		s.publishHistory(len(updated))
	}

	return selected
}

// ShowHistoryEntry makes a history entry the selected place without re-recording it
func (s *Service) ShowHistoryEntry(id string) (*models.ResolvedPlace, error) {
	entry, ok := history.Find(s.store.Snapshot().History, id)
	if !ok {
		return nil, ErrHistoryEntryNotFound
	}
	s.store.SetSelected(&entry)
	return &entry, nil
}

// Remove deletes one history entry. The state change stands even when the
// persist fails; the PersistenceError is returned so callers can warn.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.edit(ctx, "remove", func(current []models.ResolvedPlace) []models.ResolvedPlace {
		return history.Remove(current, id)
	})
}

// Clear empties history, with the same persistence semantics as Remove
func (s *Service) Clear(ctx context.Context) error {
	return s.edit(ctx, "clear", func([]models.ResolvedPlace) []models.ResolvedPlace {
		return history.Clear()
	})
}

func (s *Service) edit(ctx context.Context, op string, fn func([]models.ResolvedPlace) []models.ResolvedPlace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := fn(s.store.Snapshot().History)
	s.store.SetHistory(updated)

	if err := s.history.Persist(ctx, updated); err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("History change not saved")
		return err
	}

	s.logger.Debug().Str("op", op).Int("entries", len(updated)).Msg("History updated")
	s.publishHistory(len(updated))
	return nil
}

func (s *Service) publishHistory(count int) {
	s.publishEvent(interfaces.EventHistoryUpdated, map[string]interface{}{
		"count": count,
	})
}

func (s *Service) publishEvent(eventType interfaces.EventType, data map[string]interface{}) {
	if s.eventService == nil {
		return
	}

	data["timestamp"] = time.Now().Format(time.RFC3339)
	if err := s.eventService.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: data}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
