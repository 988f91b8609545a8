package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
)

// fakeProvider serves canned autocomplete/details responses keyed by request shape
type fakeProvider struct {
	mu           sync.Mutex
	requests     []*http.Request
	autocomplete func(r *http.Request) (int, interface{})
	details      func(r *http.Request) (int, interface{})
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	var status int
	var body interface{}
	switch r.URL.Path {
	case "/autocomplete/json":
		status, body = f.autocomplete(r)
	case "/details/json":
		status, body = f.details(r)
	default:
		status, body = http.StatusNotFound, map[string]string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeProvider) typesRequested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, len(f.requests))
	for i, r := range f.requests {
		types[i] = r.URL.Query().Get("types")
	}
	return types
}

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestService(t *testing.T, provider *fakeProvider, mutate ...func(*common.PlacesAPIConfig)) interfaces.PlacesService {
	t.Helper()

	server := httptest.NewServer(provider)
	t.Cleanup(server.Close)

	config := common.NewDefaultConfig().PlacesAPI
	config.APIKey = "test-key"
	config.BaseURL = server.URL
	config.RateLimit = 0
	for _, m := range mutate {
		m(&config)
	}

	return NewService(&config, nil, nil, arbor.NewLogger())
}

func predictionsResponse(ids ...string) AutocompleteResponse {
	resp := AutocompleteResponse{Status: StatusOK}
	for _, id := range ids {
		resp.Predictions = append(resp.Predictions, PredictionResult{PlaceID: id, Description: "place " + id, Types: []string{"cafe"}})
	}
	if len(ids) == 0 {
		resp.Status = StatusZeroResults
	}
	return resp
}

func TestSearch_EstablishmentHit(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, predictionsResponse("e1", "e2")
		},
	}
	service := newTestService(t, provider)

	predictions, err := service.Search(context.Background(), "cafe", nil)

	require.NoError(t, err)
	require.Len(t, predictions, 2)
	assert.Equal(t, "e1", predictions[0].ID)
	assert.Equal(t, "place e1", predictions[0].Description)
	assert.Equal(t, "cafe", predictions[0].PlaceType)
	assert.Equal(t, []string{CategoryEstablishment}, provider.typesRequested())
}

func TestSearch_EmptyEstablishmentsUsesAddressResult(t *testing.T) {
	tests := []struct {
		name    string
		address AutocompleteResponse
		want    int
	}{
		{name: "address results", address: predictionsResponse("a1"), want: 1},
		{name: "address empty is final", address: predictionsResponse(), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				autocomplete: func(r *http.Request) (int, interface{}) {
					if r.URL.Query().Get("types") == CategoryEstablishment {
						return http.StatusOK, predictionsResponse()
					}
					return http.StatusOK, tt.address
				},
			}
			service := newTestService(t, provider)

			predictions, err := service.Search(context.Background(), "1 George St", nil)

			require.NoError(t, err)
			assert.Len(t, predictions, tt.want)
			assert.NotNil(t, predictions)
			assert.Equal(t, []string{CategoryEstablishment, CategoryAddress}, provider.typesRequested())
		})
	}
}

func TestSearch_FallsBackToUnrestrictedOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		failure func() (int, interface{})
	}{
		{
			name:    "provider status",
			failure: func() (int, interface{}) { return http.StatusOK, AutocompleteResponse{Status: "OVER_QUERY_LIMIT"} },
		},
		{
			name:    "http status",
			failure: func() (int, interface{}) { return http.StatusInternalServerError, map[string]string{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				autocomplete: func(r *http.Request) (int, interface{}) {
					if r.URL.Query().Get("types") != "" {
						return tt.failure()
					}
					return http.StatusOK, predictionsResponse("u1")
				},
			}
			service := newTestService(t, provider)

			predictions, err := service.Search(context.Background(), "cafe", nil)

			require.NoError(t, err)
			require.Len(t, predictions, 1)
			assert.Equal(t, "u1", predictions[0].ID)
			assert.Equal(t, []string{CategoryEstablishment, ""}, provider.typesRequested())
		})
	}
}

func TestSearch_AddressFailureAlsoFallsBack(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			switch r.URL.Query().Get("types") {
			case CategoryEstablishment:
				return http.StatusOK, predictionsResponse()
			case CategoryAddress:
				return http.StatusOK, AutocompleteResponse{Status: "UNKNOWN_ERROR"}
			default:
				return http.StatusOK, predictionsResponse()
			}
		},
	}
	service := newTestService(t, provider)

	predictions, err := service.Search(context.Background(), "cafe", nil)

	require.NoError(t, err)
	assert.Empty(t, predictions)
	assert.Equal(t, []string{CategoryEstablishment, CategoryAddress, ""}, provider.typesRequested())
}

func TestSearch_FallbackFailurePropagates(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, AutocompleteResponse{Status: "REQUEST_DENIED", ErrorMessage: "The provided API key is invalid."}
		},
	}
	service := newTestService(t, provider)

	_, err := service.Search(context.Background(), "cafe", nil)

	require.Error(t, err)
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "REQUEST_DENIED", provErr.Status)
	assert.Equal(t, "The provided API key is invalid.", err.Error())
	assert.Equal(t, 2, provider.count())
}

func TestSearch_DefaultProviderMessage(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, AutocompleteResponse{Status: "INVALID_REQUEST"}
		},
	}
	service := newTestService(t, provider)

	_, err := service.Search(context.Background(), "cafe", nil)

	require.Error(t, err)
	assert.Equal(t, "API request failed", err.Error())
}

func TestSearch_SendsBiasAndCredentials(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, predictionsResponse("e1")
		},
	}
	service := newTestService(t, provider, func(c *common.PlacesAPIConfig) { c.Language = "fr" })

	_, err := service.Search(context.Background(), "gare", &models.LocationBias{Lat: 48.85, Lng: 2.35})
	require.NoError(t, err)

	query := provider.requests[0].URL.Query()
	assert.Equal(t, "gare", query.Get("input"))
	assert.Equal(t, "test-key", query.Get("key"))
	assert.Equal(t, "fr", query.Get("language"))
	assert.Equal(t, "48.850000,2.350000", query.Get("location"))
	assert.Equal(t, "50000", query.Get("radius"))
}

func TestSearch_NoBiasOmitsLocation(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, predictionsResponse("e1")
		},
	}
	service := newTestService(t, provider)

	_, err := service.Search(context.Background(), "cafe", nil)
	require.NoError(t, err)

	query := provider.requests[0].URL.Query()
	assert.False(t, query.Has("location"))
	assert.False(t, query.Has("radius"))
}

func TestSearch_CancelledContextSkipsFallback(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, predictionsResponse("e1")
		},
	}
	service := newTestService(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Search(ctx, "cafe", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.count())
}

func TestSearch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusBadGateway, map[string]string{}
		},
	}
	service := newTestService(t, provider, func(c *common.PlacesAPIConfig) {
		c.BreakerTrips = 2
		c.BreakerTimeout = "1m"
	})

	_, err := service.Search(context.Background(), "cafe", nil)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, 2, provider.count())

	_, err = service.Search(context.Background(), "cafe", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, provider.count())
}

func TestResolveDetails(t *testing.T) {
	provider := &fakeProvider{
		details: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, DetailsResponse{
				Status: StatusOK,
				Result: PlaceResult{
					Name:             "Opera House",
					FormattedAddress: "Bennelong Point, Sydney",
					Geometry:         &Geometry{Location: &LatLng{Lat: -33.8568, Lng: 151.2153}},
					Types:            []string{"tourist_attraction"},
					BusinessStatus:   "OPERATIONAL",
				},
			}
		},
	}
	service := newTestService(t, provider)

	details, err := service.ResolveDetails(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "Opera House", details.Name)
	assert.Equal(t, "Bennelong Point, Sydney", details.Address)
	assert.Equal(t, -33.8568, details.Lat)
	assert.Equal(t, 151.2153, details.Lng)
	assert.Equal(t, "OPERATIONAL", details.BusinessStatus)

	query := provider.requests[0].URL.Query()
	assert.Equal(t, "p1", query.Get("place_id"))
	assert.Equal(t, "geometry,name,formatted_address,types,business_status", query.Get("fields"))
}

func TestResolveDetails_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		message string
		network bool
	}{
		{name: "not found", status: http.StatusOK, body: DetailsResponse{Status: "NOT_FOUND"}, message: "API request failed"},
		{name: "zero results", status: http.StatusOK, body: DetailsResponse{Status: StatusZeroResults}, message: "Failed to fetch place details"},
		{name: "provider message", status: http.StatusOK, body: DetailsResponse{Status: "INVALID_REQUEST", ErrorMessage: "bad id"}, message: "bad id"},
		{name: "no geometry", status: http.StatusOK, body: DetailsResponse{Status: StatusOK, Result: PlaceResult{Name: "x"}}, message: "Place details have no location"},
		{name: "http failure", status: http.StatusServiceUnavailable, body: map[string]string{}, network: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				details: func(r *http.Request) (int, interface{}) { return tt.status, tt.body },
			}
			service := newTestService(t, provider)

			_, err := service.ResolveDetails(context.Background(), "p1")

			require.Error(t, err)
			if tt.network {
				assert.True(t, IsNetworkError(err))
				return
			}
			assert.True(t, IsProviderError(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestResolveDetails_RequiresID(t *testing.T) {
	service := newTestService(t, &fakeProvider{})

	_, err := service.ResolveDetails(context.Background(), " ")
	assert.Error(t, err)
}

func TestSearch_PublishesEvents(t *testing.T) {
	provider := &fakeProvider{
		autocomplete: func(r *http.Request) (int, interface{}) {
			return http.StatusOK, predictionsResponse("e1")
		},
	}
	server := httptest.NewServer(provider)
	defer server.Close()

	events := &recordingEvents{}
	config := common.NewDefaultConfig().PlacesAPI
	config.BaseURL = server.URL
	service := NewService(&config, nil, events, arbor.NewLogger())

	_, err := service.Search(context.Background(), "cafe", nil)
	require.NoError(t, err)

	assert.Equal(t, []interfaces.EventType{
		interfaces.EventPlacesSearchStarted,
		interfaces.EventPlacesSearchCompleted,
	}, events.types())
}

type recordingEvents struct {
	interfaces.EventService
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interfaces.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
