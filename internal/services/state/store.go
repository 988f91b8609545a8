package state

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/models"
)

// Listener receives a snapshot after every write. Listeners run on the
// writer's goroutine in write order and must not call Update.
type Listener = func(snapshot models.SearchState)

// Store is the single shared container for search state. Each write is one
// critical section; snapshots are deep copies.
type Store struct {
	mu    sync.RWMutex
	state models.SearchState

	// notifyMu keeps listener delivery in write order
	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextID    int

	logger arbor.ILogger
	now    func() time.Time
}

// NewStore creates an idle store
func NewStore(logger arbor.ILogger) *Store {
	return &Store{
		state: models.SearchState{
			Results: []models.Prediction{},
			History: []models.ResolvedPlace{},
		},
		listeners: make(map[int]Listener),
		logger:    logger,
		now:       time.Now,
	}
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() models.SearchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update applies fn atomically and notifies listeners with the result.
// fn returns false to signal no change; listeners are then not called.
func (s *Store) Update(fn func(state *models.SearchState) bool) models.SearchState {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		snapshot := s.state.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.state.Version++
	s.state.UpdatedAt = s.now()
	snapshot := s.state.Clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.deliver(l, snapshot)
	}
	return snapshot
}

func (s *Store) deliver(l Listener, snapshot models.SearchState) {
	defer common.RecoverAndLog(s.logger, "state-listener")
	l(snapshot.Clone())
}

// Subscribe registers l and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SetQuery records the raw query text
func (s *Store) SetQuery(query string) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		if st.Query == query {
			return false
		}
		st.Query = query
		return true
	})
}

// BeginSearch marks a lookup as in flight and clears the previous error
func (s *Store) BeginSearch() models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		st.Loading = true
		st.Error = ""
		return true
	})
}

// PublishResults replaces the result list and clears loading
func (s *Store) PublishResults(results []models.Prediction) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		st.Results = models.ClonePredictions(results)
		st.Loading = false
		st.Error = ""
		return true
	})
}

// PublishError records message, empties the results and clears loading
func (s *Store) PublishError(message string) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		st.Results = []models.Prediction{}
		st.Loading = false
		st.Error = message
		return true
	})
}

// ClearSearch empties results and error and clears loading. The query is kept
// unless clearQuery is set.
func (s *Store) ClearSearch(clearQuery bool) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		if !st.Loading && st.Error == "" && len(st.Results) == 0 && (!clearQuery || st.Query == "") {
			return false
		}
		if clearQuery {
			st.Query = ""
		}
		st.Results = []models.Prediction{}
		st.Loading = false
		st.Error = ""
		return true
	})
}

// SetOffline records reachability
func (s *Store) SetOffline(offline bool) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		if st.Offline == offline {
			return false
		}
		st.Offline = offline
		return true
	})
}

// IsOffline reports the last published reachability
func (s *Store) IsOffline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Offline
}

// SetHistory replaces the in-memory history
func (s *Store) SetHistory(history []models.ResolvedPlace) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		st.History = models.CloneHistory(history)
		return true
	})
}

// SetSelected sets (or with nil clears) the selected place
func (s *Store) SetSelected(place *models.ResolvedPlace) models.SearchState {
	return s.Update(func(st *models.SearchState) bool {
		if place == nil {
			if st.SelectedPlace == nil {
				return false
			}
			st.SelectedPlace = nil
			return true
		}
		selected := place.Clone()
		st.SelectedPlace = &selected
		return true
	})
}
