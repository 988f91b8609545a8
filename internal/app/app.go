// -----------------------------------------------------------------------
// Last Modified: Wednesday, 14th October 2026 4:22:09 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/handlers"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/services/connectivity"
	"github.com/ternarybob/locus/internal/services/events"
	"github.com/ternarybob/locus/internal/services/history"
	"github.com/ternarybob/locus/internal/services/places"
	"github.com/ternarybob/locus/internal/services/search"
	"github.com/ternarybob/locus/internal/services/selection"
	"github.com/ternarybob/locus/internal/services/state"
	"github.com/ternarybob/locus/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService

	// Place search
	PlacesService    interfaces.PlacesService
	HistoryService   *history.Service
	StateStore       *state.Store
	SearchPipeline   *search.Pipeline
	SelectionService *selection.Service
	Connectivity     *connectivity.Monitor

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	SearchHandler  *handlers.SearchHandler
	HistoryHandler *handlers.HistoryHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if cfg.Connectivity.Enabled {
		app.Connectivity.Start(app.ctx)
	}

	logger.Info().
		Bool("connectivity_enabled", cfg.Connectivity.Enabled).
		Int("history_entries", len(app.StateStore.Snapshot().History)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices builds the search stack in dependency order:
// places client -> state store -> pipeline -> history -> selection -> connectivity.
func (a *App) initServices() error {
	kv := a.StorageManager.KeyValueStorage()

	a.PlacesService = places.NewService(&a.Config.PlacesAPI, kv, a.EventService, a.Logger)
	a.StateStore = state.NewStore(a.Logger)
	a.SearchPipeline = search.NewPipeline(a.PlacesService, a.StateStore, &a.Config.Search, a.Logger)
	a.HistoryService = history.NewService(kv, &a.Config.History, a.Logger)

	a.SelectionService = selection.NewService(
		a.PlacesService,
		a.HistoryService,
		a.StateStore,
		a.SearchPipeline,
		a.EventService,
		a.Logger,
	)

	restoreCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	a.SelectionService.Restore(restoreCtx)

	store := a.StateStore
	probe := connectivity.NewHTTPProbe(
		a.Config.Connectivity.ProbeURL,
		common.ParseDuration(a.Config.Connectivity.ProbeTimeout, 3*time.Second),
	)
	a.Connectivity = connectivity.NewMonitor(
		probe,
		func(offline bool) { store.SetOffline(offline) },
		a.EventService,
		&a.Config.Connectivity,
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.StateStore, a.SearchPipeline, a.EventService, a.Logger, &a.Config.WebSocket)
	a.APIHandler = handlers.NewAPIHandler(a.StateStore, a.WSHandler, a.Logger)
	a.SearchHandler = handlers.NewSearchHandler(a.SearchPipeline, a.StateStore, a.SelectionService, a.Logger)
	a.HistoryHandler = handlers.NewHistoryHandler(a.StateStore, a.SelectionService, a.Logger)
}

// Close stops background work and releases resources in reverse start order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.Connectivity != nil {
		a.Connectivity.Stop()
		a.Logger.Debug().Msg("Connectivity monitor stopped")
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.SearchPipeline != nil {
		a.SearchPipeline.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
