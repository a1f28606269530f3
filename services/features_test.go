package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"journalhub/migrations"
	"journalhub/models"
)

// memFeatureStore ist ein In-Memory-FeatureStore für Tests.
type memFeatureStore struct {
	mu       sync.Mutex
	features map[string]models.Feature
}

func newMemFeatureStore() *memFeatureStore {
	return &memFeatureStore{features: make(map[string]models.Feature)}
}

func (s *memFeatureStore) Get(ctx context.Context, name string) (*models.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[name]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *memFeatureStore) List(ctx context.Context) ([]models.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Feature
	for _, f := range s.features {
		out = append(out, f)
	}
	return out, nil
}

func (s *memFeatureStore) Insert(ctx context.Context, f *models.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.features[f.Name]; ok {
		return ErrAlreadyInserted
	}
	s.features[f.Name] = *f
	return nil
}

func (s *memFeatureStore) CompareAndSwap(ctx context.Context, name string, from, to models.FeatureStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[name]
	if !ok || f.Status != from {
		return false, nil
	}
	f.Status = to
	s.features[name] = f
	return true, nil
}

func (s *memFeatureStore) set(name string, status models.FeatureStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[name] = models.Feature{Name: name, Status: status}
}

func (s *memFeatureStore) status(name string) models.FeatureStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[name]
	if !ok {
		return models.FeatureUncreated
	}
	return f.Status
}

// fakeMigration protokolliert Aufrufe und kann pro Schritt Fehler liefern.
type fakeMigration struct {
	calls   []string
	errs    map[string]error
	started chan struct{} // wenn gesetzt: Schritt meldet Start und blockiert auf release
	release chan struct{}
}

func (m *fakeMigration) step(name string) error {
	m.calls = append(m.calls, name)
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	if m.errs != nil {
		return m.errs[name]
	}
	return nil
}

func (m *fakeMigration) Initialize(ctx context.Context) error   { return m.step("initialize") }
func (m *fakeMigration) Up(ctx context.Context) error           { return m.step("up") }
func (m *fakeMigration) Down(ctx context.Context) error         { return m.step("down") }
func (m *fakeMigration) Uninitialize(ctx context.Context) error { return m.step("uninitialize") }

func newTestFeatureService(t *testing.T) (*FeatureService, *memFeatureStore, *fakeMigration) {
	t.Helper()
	store := newMemFeatureStore()
	migration := &fakeMigration{}
	registry := migrations.Registry{"paper-search-42": migration}
	return NewFeatureService(registry, store, zap.NewNop()), store, migration
}

func TestLifecycleMissingFeature(t *testing.T) {
	svc, _, _ := newTestFeatureService(t)
	ctx := context.Background()

	_, err := svc.CreateFeature(ctx, "unknown-feature-9")
	assert.ErrorIs(t, err, ErrMissingFeature)

	_, err = svc.GetFeature(ctx, "unknown-feature-9")
	assert.ErrorIs(t, err, ErrMissingFeature)

	_, err = svc.PatchStatus(ctx, "unknown-feature-9", models.FeatureInitialized)
	assert.ErrorIs(t, err, ErrMissingFeature)
}

func TestCreateFeature(t *testing.T) {
	svc, store, _ := newTestFeatureService(t)
	ctx := context.Background()

	f, err := svc.CreateFeature(ctx, "paper-search-42")
	require.NoError(t, err)
	assert.Equal(t, models.FeatureCreated, f.Status)
	assert.Equal(t, models.FeatureCreated, store.status("paper-search-42"))

	_, err = svc.CreateFeature(ctx, "paper-search-42")
	assert.ErrorIs(t, err, ErrAlreadyInserted)
}

func TestPatchStatusNotCreated(t *testing.T) {
	svc, _, _ := newTestFeatureService(t)
	_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureInitialized)
	assert.ErrorIs(t, err, ErrNotCreated)
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from, to models.FeatureStatus
		steps    []string
	}{
		{models.FeatureCreated, models.FeatureInitialized, []string{"initialize"}},
		{models.FeatureInitialized, models.FeatureMigrated, []string{"up"}},
		{models.FeatureInitialized, models.FeatureEnabled, []string{"up"}},
		{models.FeatureInitialized, models.FeatureUninitialized, []string{"uninitialize"}},
		{models.FeatureMigrated, models.FeatureEnabled, nil},
		{models.FeatureMigrated, models.FeatureRolledBack, []string{"down"}},
		{models.FeatureEnabled, models.FeatureDisabled, nil},
		{models.FeatureEnabled, models.FeatureRolledBack, []string{"down"}},
		{models.FeatureDisabled, models.FeatureEnabled, nil},
		{models.FeatureDisabled, models.FeatureRolledBack, []string{"down"}},
		{models.FeatureRolledBack, models.FeatureMigrated, []string{"up"}},
		{models.FeatureRolledBack, models.FeatureEnabled, []string{"up"}},
		{models.FeatureRolledBack, models.FeatureUninitialized, []string{"uninitialize"}},
		{models.FeatureUninitialized, models.FeatureInitialized, []string{"initialize"}},
	}

	for _, tc := range legal {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			svc, store, migration := newTestFeatureService(t)
			store.set("paper-search-42", tc.from)

			f, err := svc.PatchStatus(context.Background(), "paper-search-42", tc.to)
			require.NoError(t, err)
			assert.Equal(t, tc.to, f.Status)
			assert.Equal(t, tc.to, store.status("paper-search-42"))
			assert.Equal(t, tc.steps, migration.calls)
		})
	}
}

func TestTransitionTableRejectsEverythingElse(t *testing.T) {
	settled := []models.FeatureStatus{
		models.FeatureCreated, models.FeatureInitialized, models.FeatureMigrated,
		models.FeatureEnabled, models.FeatureDisabled, models.FeatureRolledBack,
		models.FeatureUninitialized,
	}
	legal := map[models.FeatureStatus]map[models.FeatureStatus]bool{}
	for from, targets := range transitions {
		legal[from] = map[models.FeatureStatus]bool{}
		for to := range targets {
			legal[from][to] = true
		}
	}

	for _, from := range settled {
		for _, to := range settled {
			if legal[from][to] {
				continue
			}
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				svc, store, migration := newTestFeatureService(t)
				store.set("paper-search-42", from)

				_, err := svc.PatchStatus(context.Background(), "paper-search-42", to)
				assert.ErrorIs(t, err, ErrInvalidStatus)
				assert.Equal(t, from, store.status("paper-search-42"), "status must be unchanged")
				assert.Empty(t, migration.calls, "no migration step may run")
			})
		}
	}
}

func TestPatchStatusRejectsMarkerTargets(t *testing.T) {
	svc, store, _ := newTestFeatureService(t)
	store.set("paper-search-42", models.FeatureInitialized)

	_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureMigrating)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStepFailureWithRollbackRestoresStatus(t *testing.T) {
	svc, store, migration := newTestFeatureService(t)
	store.set("paper-search-42", models.FeatureInitialized)
	cause := errors.New("backfill constraint violation")
	migration.errs = map[string]error{"up": migrations.RolledBack("up", cause)}

	_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureMigrated)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	// Recoverable: der Status fällt auf den Ausgangszustand zurück, nicht
	// auf uncreated.
	assert.Equal(t, models.FeatureInitialized, store.status("paper-search-42"))
}

func TestStepFailureWithoutRollbackKeepsMarker(t *testing.T) {
	svc, store, migration := newTestFeatureService(t)
	store.set("paper-search-42", models.FeatureInitialized)
	cause := errors.New("backfill failed")
	rollbackErr := errors.New("rollback failed too")
	migration.errs = map[string]error{"up": migrations.NoRollback("up", cause, rollbackErr)}

	_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureMigrated)
	require.Error(t, err)

	var merr *migrations.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.False(t, merr.Recoverable)
	// Fataler Fall: der Marker bleibt als Spur stehen.
	assert.Equal(t, models.FeatureMigrating, store.status("paper-search-42"))

	// Jede weitere Transition scheitert mit in-progress, bis ein Operator
	// eingreift.
	_, err = svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureMigrated)
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestConcurrentTransitionFailsFast(t *testing.T) {
	svc, store, migration := newTestFeatureService(t)
	store.set("paper-search-42", models.FeatureCreated)
	migration.started = make(chan struct{}, 1)
	migration.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureInitialized)
		done <- err
	}()

	<-migration.started // die erste Transition hält jetzt den Marker

	_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureInitialized)
	assert.ErrorIs(t, err, ErrInProgress)

	close(migration.release)
	require.NoError(t, <-done)
	assert.Equal(t, models.FeatureInitialized, store.status("paper-search-42"))
}

func TestMarkerChangedExternallyDuringStep(t *testing.T) {
	svc, store, migration := newTestFeatureService(t)
	store.set("paper-search-42", models.FeatureCreated)
	migration.started = make(chan struct{}, 1)
	migration.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.PatchStatus(context.Background(), "paper-search-42", models.FeatureInitialized)
		done <- err
	}()

	<-migration.started
	// Ein Operator setzt die Zeile von Hand um, während der Schritt läuft.
	store.set("paper-search-42", models.FeatureDisabled)
	close(migration.release)

	assert.ErrorIs(t, <-done, ErrInProgress)
	// Der von Hand gesetzte Status darf nicht überschrieben werden.
	assert.Equal(t, models.FeatureDisabled, store.status("paper-search-42"))
}

func TestListFeaturesIncludesUncreated(t *testing.T) {
	svc, store, _ := newTestFeatureService(t)

	features, err := svc.ListFeatures(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, models.FeatureUncreated, features[0].Status)

	store.set("paper-search-42", models.FeatureEnabled)
	features, err = svc.ListFeatures(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, models.FeatureEnabled, features[0].Status)
}

func TestEnabled(t *testing.T) {
	svc, store, _ := newTestFeatureService(t)
	ctx := context.Background()

	assert.False(t, svc.Enabled(ctx, "paper-search-42"))
	store.set("paper-search-42", models.FeatureMigrated)
	assert.False(t, svc.Enabled(ctx, "paper-search-42"))
	store.set("paper-search-42", models.FeatureEnabled)
	assert.True(t, svc.Enabled(ctx, "paper-search-42"))
}
