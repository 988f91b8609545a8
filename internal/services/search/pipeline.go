package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/state"
)

// Messages published when a lookup fails without a usable message, or when
// the pipeline itself fails
const (
	SearchFailedMessage    = "Search failed"
	UnexpectedErrorMessage = "An unexpected error occurred"
)

// Pipeline turns raw query text into at most one lookup per quiet period.
//
// Every Submit starts a new generation. A lookup publishes only if its
// generation is still current when it completes, checked under mu, so a
// superseded response can never overwrite a newer one. Superseded lookups
// also have their context cancelled.
type Pipeline struct {
	places    interfaces.PlacesService
	store     *state.Store
	logger    arbor.ILogger
	debounce  time.Duration
	minLength int

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	bias       *models.LocationBias
	closed     bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewPipeline creates a pipeline publishing into store
func NewPipeline(places interfaces.PlacesService, store *state.Store, config *common.SearchConfig, logger arbor.ILogger) *Pipeline {
	minLength := config.MinQueryLength
	if minLength <= 0 {
		minLength = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		places:     places,
		store:      store,
		logger:     logger,
		debounce:   common.ParseDuration(config.Debounce, 400*time.Millisecond),
		minLength:  minLength,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// SetBias sets the location lookups are biased towards; nil removes it
func (p *Pipeline) SetBias(bias *models.LocationBias) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bias == nil {
		p.bias = nil
		return
	}
	b := *bias
	p.bias = &b
}

// Submit feeds the latest query text. Queries shorter than the minimum
// length clear the results at once; anything else (re)starts the debounce.
// Returns the generation assigned to this submission.
func (p *Pipeline) Submit(query string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.generation
	}

	p.generation++
	gen := p.generation
	p.stopLocked()

	p.store.SetQuery(query)

	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < p.minLength {
		p.store.ClearSearch(false)
		return gen
	}

	p.timer = time.AfterFunc(p.debounce, func() {
		p.fire(gen, trimmed)
	})
	return gen
}

// Clear abandons any pending or in-flight lookup and empties the query and results
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.generation++
	p.stopLocked()
	p.store.ClearSearch(true)
}

// Close stops the pipeline; later submissions are ignored
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.generation++
	p.stopLocked()
	p.baseCancel()
}

// stopLocked stops the debounce timer and cancels the in-flight lookup
func (p *Pipeline) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// begin moves generation gen into Searching. It reports false when gen was
// superseded, the pipeline is closed or the device is offline. An offline
// attempt also drops any loading flag left by a lookup it superseded.
func (p *Pipeline) begin(gen uint64) (context.Context, *models.LocationBias, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.generation {
		return nil, nil, false
	}
	p.timer = nil

	if p.store.IsOffline() {
		p.logger.Debug().Int64("generation", int64(gen)).Msg("Offline, search suppressed")
		p.store.Update(func(st *models.SearchState) bool {
			if !st.Loading {
				return false
			}
			st.Loading = false
			return true
		})
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	p.cancel = cancel
	p.store.BeginSearch()

	var bias *models.LocationBias
	if p.bias != nil {
		b := *p.bias
		bias = &b
	}
	return ctx, bias, true
}

// publish runs fn only while gen is current, then releases the attempt's context
func (p *Pipeline) publish(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.generation {
		return false
	}
	fn()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return true
}

func (p *Pipeline) fire(gen uint64, query string) {
	logger := p.logger.WithCorrelationId(common.NewAttemptID())

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("query", query).
				Msg("Search attempt panicked")
			p.publish(gen, func() { p.store.PublishError(UnexpectedErrorMessage) })
		}
	}()

	ctx, bias, ok := p.begin(gen)
	if !ok {
		return
	}

	start := time.Now()
	logger.Debug().Str("query", query).Int64("generation", int64(gen)).Msg("Search attempt started")

	results, err := p.places.Search(ctx, query, bias)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Debug().Str("query", query).Msg("Search attempt superseded")
			return
		}
		message := err.Error()
		if message == "" {
			message = SearchFailedMessage
		}
		if p.publish(gen, func() { p.store.PublishError(message) }) {
			logger.Warn().Err(err).Str("query", query).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("Search attempt failed")
		}
		return
	}

	if p.publish(gen, func() { p.store.PublishResults(results) }) {
		logger.Info().
			Str("query", query).
			Int("results", len(results)).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("Search attempt completed")
		return
	}
	logger.Debug().Str("query", query).Msg("Discarding superseded search results")
}
