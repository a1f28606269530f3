package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/migrations"
	"journalhub/models"
)

// FeatureStore ist die Persistenz für Feature-Status-Zeilen. Get liefert
// nil für Features ohne Zeile; CompareAndSwap setzt den Status nur, wenn
// der alte Status noch stimmt, und meldet sonst false.
type FeatureStore interface {
	Get(ctx context.Context, name string) (*models.Feature, error)
	List(ctx context.Context) ([]models.Feature, error)
	Insert(ctx context.Context, f *models.Feature) error
	CompareAndSwap(ctx context.Context, name string, from, to models.FeatureStatus) (bool, error)
}

// GormFeatureStore ist die Postgres-Implementierung des FeatureStore.
type GormFeatureStore struct {
	DB *gorm.DB
}

func (s *GormFeatureStore) Get(ctx context.Context, name string) (*models.Feature, error) {
	var f models.Feature
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *GormFeatureStore) List(ctx context.Context) ([]models.Feature, error) {
	var features []models.Feature
	if err := s.DB.WithContext(ctx).Order("name asc").Find(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

func (s *GormFeatureStore) Insert(ctx context.Context, f *models.Feature) error {
	err := s.DB.WithContext(ctx).Create(f).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyInserted
	}
	return err
}

func (s *GormFeatureStore) CompareAndSwap(ctx context.Context, name string, from, to models.FeatureStatus) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Feature{}).
		Where("name = ? AND status = ?", name, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// step ist der Migrationsschritt, den eine Transition ausführt.
type step int

const (
	stepNone step = iota
	stepInitialize
	stepUp
	stepDown
	stepUninitialize
)

// transition beschreibt einen Eintrag der Zustandstabelle: welcher
// Migrationsschritt läuft und welcher Marker währenddessen gesetzt ist.
// Reine Statuswechsel (enable/disable) haben keinen Schritt und keinen
// Marker.
type transition struct {
	step   step
	marker models.FeatureStatus
}

// transitions ist die vollständige Tabelle der legalen Statuswechsel.
// Alles, was hier nicht steht, scheitert mit invalid-status.
var transitions = map[models.FeatureStatus]map[models.FeatureStatus]transition{
	models.FeatureCreated: {
		models.FeatureInitialized: {step: stepInitialize, marker: models.FeatureInitializing},
	},
	models.FeatureInitialized: {
		models.FeatureMigrated:      {step: stepUp, marker: models.FeatureMigrating},
		models.FeatureEnabled:       {step: stepUp, marker: models.FeatureMigrating},
		models.FeatureUninitialized: {step: stepUninitialize, marker: models.FeatureUninitializing},
	},
	models.FeatureMigrated: {
		models.FeatureEnabled:    {},
		models.FeatureRolledBack: {step: stepDown, marker: models.FeatureRollingBack},
	},
	models.FeatureEnabled: {
		models.FeatureDisabled:   {},
		models.FeatureRolledBack: {step: stepDown, marker: models.FeatureRollingBack},
	},
	models.FeatureDisabled: {
		models.FeatureEnabled:    {},
		models.FeatureRolledBack: {step: stepDown, marker: models.FeatureRollingBack},
	},
	models.FeatureRolledBack: {
		models.FeatureMigrated:      {step: stepUp, marker: models.FeatureMigrating},
		models.FeatureEnabled:       {step: stepUp, marker: models.FeatureMigrating},
		models.FeatureUninitialized: {step: stepUninitialize, marker: models.FeatureUninitializing},
	},
	models.FeatureUninitialized: {
		models.FeatureInitialized: {step: stepInitialize, marker: models.FeatureInitializing},
	},
}

// FeatureService besitzt den Lebenszyklus aller Feature-Flags. Die Registry
// wird bei der Konstruktion injiziert, damit Tests mit Fake-Migrationen
// arbeiten können.
type FeatureService struct {
	Registry migrations.Registry
	Store    FeatureStore
	Logger   *zap.Logger
}

// NewFeatureService erstellt eine neue Instanz des FeatureService.
func NewFeatureService(registry migrations.Registry, store FeatureStore, logger *zap.Logger) *FeatureService {
	return &FeatureService{Registry: registry, Store: store, Logger: logger}
}

// ListFeatures liefert alle Features der Registry; Namen ohne persistierte
// Zeile erscheinen mit Status "uncreated".
func (s *FeatureService) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	stored, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.Feature, len(stored))
	for _, f := range stored {
		byName[f.Name] = f
	}

	features := make([]models.Feature, 0, len(s.Registry))
	for name := range s.Registry {
		if f, ok := byName[name]; ok {
			features = append(features, f)
		} else {
			features = append(features, models.Feature{Name: name, Status: models.FeatureUncreated})
		}
	}
	return features, nil
}

// GetFeature liefert den aktuellen Zustand eines registrierten Features.
func (s *FeatureService) GetFeature(ctx context.Context, name string) (*models.Feature, error) {
	if _, ok := s.Registry.Lookup(name); !ok {
		return nil, ErrMissingFeature
	}
	f, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return &models.Feature{Name: name, Status: models.FeatureUncreated}, nil
	}
	return f, nil
}

// CreateFeature legt die Status-Zeile an: uncreated -> created. Nur
// registrierte Features dürfen angelegt werden, und nur einmal.
func (s *FeatureService) CreateFeature(ctx context.Context, name string) (*models.Feature, error) {
	if _, ok := s.Registry.Lookup(name); !ok {
		return nil, ErrMissingFeature
	}
	existing, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyInserted
	}
	f := &models.Feature{Name: name, Status: models.FeatureCreated}
	if err := s.Store.Insert(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// PatchStatus führt genau eine Transition der Zustandstabelle aus.
//
// Transitionen mit Migrationsschritt setzen zuerst per CompareAndSwap den
// In-Progress-Marker; ein zweiter Aufruf auf demselben Feature fällt damit
// sofort mit in-progress durch, statt gegen die laufende Migration zu
// rennen. Scheitert der Schritt recoverable, geht der Status zurück auf den
// Ausgangszustand; scheitert auch der Rollback der Migration, bleibt der
// Marker stehen und der Fehler wird unverändert weitergereicht.
func (s *FeatureService) PatchStatus(ctx context.Context, name string, target models.FeatureStatus) (*models.Feature, error) {
	migration, ok := s.Registry.Lookup(name)
	if !ok {
		return nil, ErrMissingFeature
	}
	if !target.Valid() || target.InProgress() {
		return nil, ErrInvalidStatus
	}

	f, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotCreated
	}
	current := f.Status
	if current.InProgress() {
		return nil, ErrInProgress
	}

	t, ok := transitions[current][target]
	if !ok {
		return nil, ErrInvalidStatus
	}

	log := s.Logger.With(zap.String("feature", name),
		zap.String("from", string(current)), zap.String("to", string(target)))

	if t.step == stepNone {
		swapped, err := s.Store.CompareAndSwap(ctx, name, current, target)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, ErrInProgress
		}
		log.Info("feature status changed")
		return s.Store.Get(ctx, name)
	}

	swapped, err := s.Store.CompareAndSwap(ctx, name, current, t.marker)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInProgress
	}

	if err := runStep(ctx, migration, t.step); err != nil {
		var merr *migrations.MigrationError
		if errors.As(err, &merr) && merr.Recoverable {
			migrationRollbacksCounter.Inc()
			if _, casErr := s.Store.CompareAndSwap(ctx, name, t.marker, current); casErr != nil {
				log.Error("failed to restore feature status after rollback", zap.Error(casErr))
				return nil, casErr
			}
			log.Warn("migration step failed and rolled back", zap.Error(err))
			return nil, err
		}
		// Fataler Fall: die Datenbank ist in unbekanntem Zustand, der
		// Marker bleibt als Spur für den Operator stehen.
		log.Error("migration step failed WITHOUT rollback, operator intervention required", zap.Error(err))
		return nil, err
	}
	migrationStepsCounter.Inc()

	swapped, err = s.Store.CompareAndSwap(ctx, name, t.marker, target)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Der Marker wurde unter uns weggeändert (Operator-Eingriff). Der
		// Schritt ist gelaufen, aber das Ergebnis gehört nicht mehr uns.
		log.Warn("feature status marker changed externally during migration step")
		return nil, ErrInProgress
	}
	log.Info("feature status changed")
	return s.Store.Get(ctx, name)
}

// Enabled meldet, ob ein Feature aktuell aktiv ist. Unbekannte oder nicht
// angelegte Features zählen als deaktiviert.
func (s *FeatureService) Enabled(ctx context.Context, name string) bool {
	f, err := s.Store.Get(ctx, name)
	if err != nil {
		s.Logger.Warn("feature lookup failed", zap.String("feature", name), zap.Error(err))
		return false
	}
	return f != nil && f.Status == models.FeatureEnabled
}

func runStep(ctx context.Context, m migrations.Migration, st step) error {
	switch st {
	case stepInitialize:
		return m.Initialize(ctx)
	case stepUp:
		return m.Up(ctx)
	case stepDown:
		return m.Down(ctx)
	case stepUninitialize:
		return m.Uninitialize(ctx)
	}
	return nil
}
