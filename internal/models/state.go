package models

import (
	"encoding/json"
	"time"
)

// SearchPhase summarises what the pipeline is doing
type SearchPhase string

const (
	PhaseIdle    SearchPhase = "idle"
	PhaseLoading SearchPhase = "loading"
	PhaseError   SearchPhase = "error"
	PhaseResults SearchPhase = "results"
)

// SearchState is the shared view of the search screen
type SearchState struct {
	Query         string          `json:"query"`
	Results       []Prediction    `json:"results"`
	Loading       bool            `json:"loading"`
	Offline       bool            `json:"offline"`
	Error         string          `json:"error,omitempty"`
	SelectedPlace *ResolvedPlace  `json:"selectedPlace,omitempty"`
	History       []ResolvedPlace `json:"history"`
	Version       uint64          `json:"version"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Phase derives a single label from the independent flags
func (s *SearchState) Phase() SearchPhase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Error != "":
		return PhaseError
	case len(s.Results) > 0:
		return PhaseResults
	default:
		return PhaseIdle
	}
}

// MarshalJSON adds the derived phase so clients need not recompute it
func (s SearchState) MarshalJSON() ([]byte, error) {
	type plain SearchState
	return json.Marshal(struct {
		plain
		Phase SearchPhase `json:"phase"`
	}{
		plain: plain(s),
		Phase: s.Phase(),
	})
}

// Clone returns a deep copy safe to hand to other goroutines
func (s SearchState) Clone() SearchState {
	out := s
	out.Results = ClonePredictions(s.Results)
	out.History = CloneHistory(s.History)
	if s.SelectedPlace != nil {
		selected := s.SelectedPlace.Clone()
		out.SelectedPlace = &selected
	}
	return out
}

// ClonePredictions deep-copies a prediction list, never returning nil
func ClonePredictions(in []Prediction) []Prediction {
	out := make([]Prediction, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Types = append([]string(nil), p.Types...)
	}
	return out
}

// CloneHistory deep-copies a history list, never returning nil
func CloneHistory(in []ResolvedPlace) []ResolvedPlace {
	out := make([]ResolvedPlace, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
