package places

// Provider status values that are not errors
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
)

// Autocomplete category restrictions
const (
	CategoryEstablishment = "establishment"
	CategoryAddress       = "address"
)

// detailFields is the field mask requested from the details endpoint
const detailFields = "geometry,name,formatted_address,types,business_status"

// AutocompleteResponse represents the Places Autocomplete API response
type AutocompleteResponse struct {
	Predictions  []PredictionResult `json:"predictions"`
	Status       string             `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// PredictionResult is one autocomplete candidate
type PredictionResult struct {
	PlaceID     string   `json:"place_id"`
	Description string   `json:"description"`
	Types       []string `json:"types,omitempty"`
}

// DetailsResponse represents the Places Details API response
type DetailsResponse struct {
	Result       PlaceResult `json:"result"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// PlaceResult holds the subset of place fields requested by detailFields
type PlaceResult struct {
	BusinessStatus   string    `json:"business_status,omitempty"`
	FormattedAddress string    `json:"formatted_address,omitempty"`
	Geometry         *Geometry `json:"geometry,omitempty"`
	Name             string    `json:"name"`
	Types            []string  `json:"types,omitempty"`
}

// Geometry represents the geometry information of a place
type Geometry struct {
	Location *LatLng `json:"location,omitempty"`
}

// LatLng represents a geographic coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
