package models

import "strings"

// UnknownPlaceType is used when the provider returns no category tags
const UnknownPlaceType = "unknown"

// Prediction is a transient candidate place returned by a text search
type Prediction struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
	PlaceType   string   `json:"placeType"`
}

// NewPrediction derives PlaceType from the first provider type
func NewPrediction(id, description string, types []string) Prediction {
	if types == nil {
		types = []string{}
	}
	return Prediction{
		ID:          id,
		Description: description,
		Types:       types,
		PlaceType:   PrimaryType(types),
	}
}

// PrimaryType returns the first tag or UnknownPlaceType
func PrimaryType(types []string) string {
	if len(types) == 0 || types[0] == "" {
		return UnknownPlaceType
	}
	return types[0]
}

// LocationBias narrows predictions around a point
type LocationBias struct {
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `json:"lng" validate:"gte=-180,lte=180"`
	Radius int     `json:"radius,omitempty" validate:"gte=0"` // metres, 0 uses the configured default
}

// PlaceDetails holds the fields returned by a detail fetch
type PlaceDetails struct {
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Types          []string `json:"types"`
	BusinessStatus string   `json:"businessStatus,omitempty"`
}

// ResolvedPlace is a confirmed selection as stored in history.
// Coordinates are pointers so a missing value is distinguishable from 0.
type ResolvedPlace struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Address        string   `json:"address"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Types          []string `json:"types"`
	PlaceType      string   `json:"placeType"`
	BusinessStatus string   `json:"businessStatus,omitempty"`
	SearchDate     string   `json:"searchDate,omitempty"`
}

// NewResolvedPlace combines a prediction with its fetched details.
// The name falls back to the prediction description.
func NewResolvedPlace(prediction Prediction, details *PlaceDetails) ResolvedPlace {
	lat, lng := details.Lat, details.Lng
	name := details.Name
	if strings.TrimSpace(name) == "" {
		name = prediction.Description
	}
	types := details.Types
	if len(types) == 0 {
		types = prediction.Types
	}
	if types == nil {
		types = []string{}
	}
	return ResolvedPlace{
		ID:             prediction.ID,
		Name:           name,
		Description:    prediction.Description,
		Address:        details.Address,
		Lat:            &lat,
		Lng:            &lng,
		Types:          types,
		PlaceType:      PrimaryType(types),
		BusinessStatus: details.BusinessStatus,
	}
}

// Valid reports whether the entry may be persisted or loaded: it needs an id,
// a name or description, and both coordinates.
func (p *ResolvedPlace) Valid() bool {
	if p == nil || p.ID == "" {
		return false
	}
	if p.Name == "" && p.Description == "" {
		return false
	}
	return p.Lat != nil && p.Lng != nil
}

// DisplayName prefers Name over Description
func (p *ResolvedPlace) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Description
}

// Clone returns a deep copy
func (p ResolvedPlace) Clone() ResolvedPlace {
	out := p
	if p.Lat != nil {
		lat := *p.Lat
		out.Lat = &lat
	}
	if p.Lng != nil {
		lng := *p.Lng
		out.Lng = &lng
	}
	if p.Types != nil {
		out.Types = append([]string(nil), p.Types...)
	}
	return out
}
