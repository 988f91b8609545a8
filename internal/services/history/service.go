package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
)

// Service mirrors the in-memory history to a single key in the KV store
type Service struct {
	kv     interfaces.KeyValueStorage
	key    string
	limit  int
	logger arbor.ILogger

	// one write in flight at a time
	writeMu sync.Mutex
}

// NewService creates the history store over kv
func NewService(kv interfaces.KeyValueStorage, config *common.HistoryConfig, logger arbor.ILogger) *Service {
	limit := config.MaxEntries
	if limit <= 0 {
		limit = MaxEntries
	}
	return &Service{
		kv:     kv,
		key:    config.StorageKey,
		limit:  limit,
		logger: logger,
	}
}

// Limit returns the history capacity
func (s *Service) Limit() int {
	return s.limit
}

// Load reads the durable mirror. Missing or unreadable data yields an empty
// history; malformed entries are dropped individually.
func (s *Service) Load(ctx context.Context) []models.ResolvedPlace {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return Clear()
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Failed to read history, starting empty")
		return Clear()
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Failed to parse history, starting empty")
		return Clear()
	}

	history := make([]models.ResolvedPlace, 0, len(entries))
	skipped := 0
	for i, entry := range entries {
		var place models.ResolvedPlace
		if err := json.Unmarshal(entry, &place); err != nil || !place.Valid() {
			skipped++
			s.logger.Debug().Int("index", i).Msg("Skipping malformed history entry")
			continue
		}
		if place.Types == nil {
			place.Types = []string{}
		}
		if place.PlaceType == "" {
			place.PlaceType = models.PrimaryType(place.Types)
		}
		history = append(history, place)
		if len(history) == s.limit {
			break
		}
	}

	s.logger.Debug().
		Int("loaded", len(history)).
		Int("skipped", skipped).
		Msg("History loaded")

	return history
}

// Persist overwrites the durable mirror with history. Invalid entries are not
// written. A failed write returns a PersistenceError.
func (s *Service) Persist(ctx context.Context, history []models.ResolvedPlace) error {
	valid := make([]models.ResolvedPlace, 0, len(history))
	for i := range history {
		if history[i].Valid() {
			valid = append(valid, history[i])
		}
	}

	data, err := json.Marshal(valid)
	if err != nil {
		return &PersistenceError{Key: s.key, Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Set(ctx, s.key, string(data), "Place selection history"); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("Failed to persist history")
		return &PersistenceError{Key: s.key, Err: err}
	}

	s.logger.Debug().Int("entries", len(valid)).Msg("History persisted")
	return nil
}
