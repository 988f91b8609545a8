package selection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/history"
	"github.com/ternarybob/locus/internal/services/state"
)

type mockPlacesService struct {
	resolveFunc func(ctx context.Context, placeID string) (*models.PlaceDetails, error)
}

func (m *mockPlacesService) Search(ctx context.Context, query string, bias *models.LocationBias) ([]models.Prediction, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPlacesService) ResolveDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	return m.resolveFunc(ctx, placeID)
}

type memoryKV struct {
	interfaces.KeyValueStorage
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}

func (m *memoryKV) Set(ctx context.Context, key, value, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

type countingResetter struct {
	store *state.Store
	calls int
}

func (c *countingResetter) Clear() {
	c.calls++
	c.store.ClearSearch(true)
}

type fixture struct {
	service  *Service
	store    *state.Store
	kv       *memoryKV
	history  *history.Service
	resetter *countingResetter
}

func newFixture(t *testing.T, resolve func(ctx context.Context, placeID string) (*models.PlaceDetails, error)) *fixture {
	t.Helper()

	logger := arbor.NewLogger()
	kv := &memoryKV{values: map[string]string{}}
	config := common.NewDefaultConfig().History
	historyService := history.NewService(kv, &config, logger)
	store := state.NewStore(logger)
	resetter := &countingResetter{store: store}

	service := NewService(&mockPlacesService{resolveFunc: resolve}, historyService, store, resetter, nil, logger)
	service.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }

	return &fixture{service: service, store: store, kv: kv, history: historyService, resetter: resetter}
}

func detailsFor(name string) func(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	return func(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
		return &models.PlaceDetails{
			Name:    name,
			Address: "1 Macquarie St",
			Lat:     -33.86,
			Lng:     151.21,
			Types:   []string{"museum"},
		}, nil
	}
}

func TestSelect_RecordsAndPersists(t *testing.T) {
	f := newFixture(t, detailsFor("Museum of Sydney"))
	f.store.SetQuery("museum")
	f.store.PublishResults([]models.Prediction{models.NewPrediction("m1", "Museum of Sydney, NSW", []string{"museum"})})

	selected, err := f.service.SelectByID(context.Background(), "m1")

	require.NoError(t, err)
	assert.Equal(t, "Museum of Sydney", selected.Name)
	assert.Equal(t, "2026-05-01T09:30:00.000Z", selected.SearchDate)

	snapshot := f.store.Snapshot()
	require.NotNil(t, snapshot.SelectedPlace)
	assert.Equal(t, "m1", snapshot.SelectedPlace.ID)
	require.Len(t, snapshot.History, 1)
	assert.Equal(t, "m1", snapshot.History[0].ID)
	assert.Empty(t, snapshot.Query)
	assert.Empty(t, snapshot.Results)
	assert.False(t, snapshot.Loading)
	assert.Equal(t, 1, f.resetter.calls)

	persisted := f.history.Load(context.Background())
	require.Len(t, persisted, 1)
	assert.Equal(t, "m1", persisted[0].ID)
}

func TestSelect_NameFallsBackToDescription(t *testing.T) {
	f := newFixture(t, detailsFor(""))

	selected, err := f.service.Select(context.Background(), models.NewPrediction("p", "Bondi Beach, NSW", nil))

	require.NoError(t, err)
	assert.Equal(t, "Bondi Beach, NSW", selected.Name)
}

func TestSelect_ReselectMovesToFront(t *testing.T) {
	f := newFixture(t, detailsFor("x"))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "a"} {
		_, err := f.service.Select(ctx, models.NewPrediction(id, id, nil))
		require.NoError(t, err)
	}

	snapshot := f.store.Snapshot()
	require.Len(t, snapshot.History, 2)
	assert.Equal(t, "a", snapshot.History[0].ID)
	assert.Equal(t, "b", snapshot.History[1].ID)
}

func TestSelect_DetailFailure(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
		return nil, errors.New("NOT_FOUND")
	})
	f.store.PublishResults([]models.Prediction{models.NewPrediction("p", "P", nil)})

	_, err := f.service.SelectByID(context.Background(), "p")

	require.Error(t, err)
	snapshot := f.store.Snapshot()
	assert.Equal(t, "Failed to fetch place details: NOT_FOUND", snapshot.Error)
	assert.False(t, snapshot.Loading)
	assert.Nil(t, snapshot.SelectedPlace)
	assert.Empty(t, snapshot.History)
	assert.Len(t, snapshot.Results, 1)
	assert.Equal(t, 0, f.resetter.calls)
}

func TestSelect_PersistFailureIsBestEffort(t *testing.T) {
	f := newFixture(t, detailsFor("Library"))
	f.kv.setErr = errors.New("disk full")

	selected, err := f.service.Select(context.Background(), models.NewPrediction("l", "Library", nil))

	require.NoError(t, err)
	assert.Equal(t, "l", selected.ID)
	assert.Len(t, f.store.Snapshot().History, 1)
}

func TestSelectByID_Unknown(t *testing.T) {
	f := newFixture(t, detailsFor("x"))

	_, err := f.service.SelectByID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrPredictionNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t, detailsFor("x"))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.service.Select(ctx, models.NewPrediction(id, id, nil))
		require.NoError(t, err)
	}

	require.NoError(t, f.service.Remove(ctx, "b"))
	assert.Len(t, f.store.Snapshot().History, 2)
	assert.Len(t, f.history.Load(ctx), 2)

	require.NoError(t, f.service.Remove(ctx, "unknown"))
	assert.Len(t, f.store.Snapshot().History, 2)

	require.NoError(t, f.service.Clear(ctx))
	assert.Empty(t, f.store.Snapshot().History)
	assert.Empty(t, f.history.Load(ctx))
}

func TestRemoveAndClear_PropagatePersistenceErrors(t *testing.T) {
	f := newFixture(t, detailsFor("x"))
	ctx := context.Background()
	_, err := f.service.Select(ctx, models.NewPrediction("a", "a", nil))
	require.NoError(t, err)

	f.kv.setErr = errors.New("disk full")

	err = f.service.Remove(ctx, "a")
	var persistErr *history.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Empty(t, f.store.Snapshot().History)

	err = f.service.Clear(ctx)
	assert.True(t, errors.As(err, &persistErr))
}

func TestRestoreAndShowHistoryEntry(t *testing.T) {
	f := newFixture(t, detailsFor("x"))
	ctx := context.Background()
	_, err := f.service.Select(ctx, models.NewPrediction("a", "a", nil))
	require.NoError(t, err)

	// fresh store, same durable mirror
	fresh := state.NewStore(arbor.NewLogger())
	restored := NewService(&mockPlacesService{}, f.history, fresh, nil, nil, arbor.NewLogger())

	loaded := restored.Restore(ctx)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", fresh.Snapshot().History[0].ID)

	entry, err := restored.ShowHistoryEntry("a")
	require.NoError(t, err)
	assert.Equal(t, "a", entry.ID)
	assert.Equal(t, "a", fresh.Snapshot().SelectedPlace.ID)

	_, err = restored.ShowHistoryEntry("zzz")
	assert.ErrorIs(t, err, ErrHistoryEntryNotFound)
}
