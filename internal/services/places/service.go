package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
)

// APIKeyName is the KV/env key the places API key is resolved from
const APIKeyName = "google_places_api_key"

// Service implements the PlacesService interface against the Google Places web API
type Service struct {
	config       *common.PlacesAPIConfig
	eventService interfaces.EventService
	logger       arbor.ILogger
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
}

// NewService creates a new Places service instance. kvStorage and eventService may be nil.
func NewService(
	config *common.PlacesAPIConfig,
	kvStorage interfaces.KeyValueStorage,
	eventService interfaces.EventService,
	logger arbor.ILogger,
) interfaces.PlacesService {
	apiKey, err := common.ResolveAPIKey(context.Background(), kvStorage, APIKeyName, config.APIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("Places API key not configured, provider requests will be denied")
	}

	s := &Service{
		config:       config,
		eventService: eventService,
		logger:       logger,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: common.ParseDuration(config.RequestTimeout, 10*time.Second),
		},
		limiter: newLimiter(config.RateLimit),
	}

	trips := config.BreakerTrips
	if trips == 0 {
		trips = 5
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "places",
		MaxRequests: 1,
		Timeout:     common.ParseDuration(config.BreakerTimeout, 30*time.Second),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Places circuit breaker changed state")
		},
		// Callers abandoning a request say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return s
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Search prefers establishments, then addresses. Any failure on that path
// falls back to one unrestricted autocomplete whose error is final.
func (s *Service) Search(ctx context.Context, query string, bias *models.LocationBias) ([]models.Prediction, error) {
	s.publishEvent(interfaces.EventPlacesSearchStarted, map[string]interface{}{
		"query": query,
	})

	predictions, err := s.searchByCategory(ctx, query, bias)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn().
			Err(err).
			Str("query", query).
			Msg("Category search failed, falling back to unrestricted autocomplete")
		predictions, err = s.autocomplete(ctx, query, "", bias)
	}

	if err != nil {
		s.publishEvent(interfaces.EventPlacesSearchFailed, map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return nil, err
	}

	s.publishEvent(interfaces.EventPlacesSearchCompleted, map[string]interface{}{
		"query": query,
		"count": len(predictions),
	})

	return predictions, nil
}

// searchByCategory never merges: an empty establishment result hands over to
// the address search, whose result is authoritative even when empty.
func (s *Service) searchByCategory(ctx context.Context, query string, bias *models.LocationBias) ([]models.Prediction, error) {
	predictions, err := s.autocomplete(ctx, query, CategoryEstablishment, bias)
	if err != nil {
		return nil, err
	}
	if len(predictions) > 0 {
		return predictions, nil
	}

	s.logger.Debug().Str("query", query).Msg("No establishments matched, searching addresses")
	return s.autocomplete(ctx, query, CategoryAddress, bias)
}

func (s *Service) autocomplete(ctx context.Context, query, category string, bias *models.LocationBias) ([]models.Prediction, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("language", s.config.Language)
	if category != "" {
		params.Set("types", category)
	}
	if bias != nil {
		radius := bias.Radius
		if radius <= 0 {
			radius = s.config.BiasRadius
		}
		params.Set("location", fmt.Sprintf("%f,%f", bias.Lat, bias.Lng))
		params.Set("radius", strconv.Itoa(radius))
	}

	var resp AutocompleteResponse
	if err := s.get(ctx, "autocomplete", params, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus("autocomplete", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	predictions := make([]models.Prediction, 0, len(resp.Predictions))
	if resp.Status == StatusOK {
		for _, p := range resp.Predictions {
			predictions = append(predictions, models.NewPrediction(p.PlaceID, p.Description, p.Types))
		}
	}

	s.logger.Debug().
		Str("query", query).
		Str("category", category).
		Str("status", resp.Status).
		Int("results_count", len(predictions)).
		Msg("Places autocomplete completed")

	return predictions, nil
}

// ResolveDetails fetches the place's name, address, coordinates and types
func (s *Service) ResolveDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	if strings.TrimSpace(placeID) == "" {
		return nil, fmt.Errorf("place id is required")
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)
	params.Set("language", s.config.Language)

	var resp DetailsResponse
	if err := s.get(ctx, "details", params, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus("details", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, &ProviderError{Op: "details", Status: resp.Status, Message: messageOr(resp.ErrorMessage, "Failed to fetch place details")}
	}

	result := resp.Result
	if result.Geometry == nil || result.Geometry.Location == nil {
		return nil, &ProviderError{Op: "details", Status: resp.Status, Message: "Place details have no location"}
	}

	types := result.Types
	if types == nil {
		types = []string{}
	}

	return &models.PlaceDetails{
		Name:           result.Name,
		Address:        result.FormattedAddress,
		Lat:            result.Geometry.Location.Lat,
		Lng:            result.Geometry.Location.Lng,
		Types:          types,
		BusinessStatus: result.BusinessStatus,
	}, nil
}

// checkStatus gates on the provider status: OK and ZERO_RESULTS pass
func checkStatus(op, status, message string) error {
	if status == StatusOK || status == StatusZeroResults {
		return nil
	}
	return &ProviderError{Op: op, Status: status, Message: messageOr(message, "API request failed")}
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

// get issues a rate-limited, breaker-guarded GET to {base}/{endpoint}/json and decodes into out
func (s *Service) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: endpoint, Err: err}
	}

	apiURL := fmt.Sprintf("%s/%s/json", s.baseURL, endpoint)

	// Redact API key in logs
	s.logger.Debug().
		Str("url", apiURL+"?"+params.Encode()+"&key=***REDACTED***").
		Msg("Calling Google Places API")

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("key", s.apiKey)

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.fetch(ctx, apiURL+"?"+query.Encode(), out)
	})
	if err != nil {
		return &NetworkError{Op: endpoint, Err: err}
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, fullURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the full URL, key included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Err
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// publishEvent publishes an event via the event service
func (s *Service) publishEvent(eventType interfaces.EventType, data map[string]interface{}) {
	if s.eventService == nil {
		return
	}

	data["timestamp"] = time.Now().Format(time.RFC3339)
	event := interfaces.Event{
		Type:    eventType,
		Payload: data,
	}
	if err := s.eventService.Publish(context.Background(), event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish event")
	}
}
