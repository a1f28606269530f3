package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/models"
	"journalhub/providers"
)

// WorksService initialisiert die Fachgebiets-Reputation eines Nutzers aus
// seinen bereits publizierten Arbeiten. Die Zitatzahlen kommen von einer
// externen Quelle; die Umrechnung in Deltas macht der ReputationService.
type WorksService struct {
	Source     providers.Source
	Reputation *ReputationService
	DB         *gorm.DB
	Logger     *zap.Logger

	mu       sync.Mutex
	inFlight map[uint]bool
}

// NewWorksService erstellt eine neue Instanz des WorksService.
func NewWorksService(source providers.Source, rep *ReputationService, db *gorm.DB, logger *zap.Logger) *WorksService {
	return &WorksService{
		Source:     source,
		Reputation: rep,
		DB:         db,
		Logger:     logger,
		inFlight:   make(map[uint]bool),
	}
}

// InitializeReputation holt die Arbeiten eines Autors von der externen
// Quelle, rechnet sie in Reputations-Deltas um und schreibt sie den
// angegebenen Fachgebieten gut. Pro Nutzer läuft höchstens eine
// Initialisierung gleichzeitig; der Lauf kann Minuten dauern.
func (s *WorksService) InitializeReputation(ctx context.Context, userID uint, author string, fieldIDs []uint) (map[uint]int64, error) {
	if len(fieldIDs) == 0 {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	if s.inFlight[userID] {
		s.mu.Unlock()
		return nil, ErrInProgress
	}
	s.inFlight[userID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, userID)
		s.mu.Unlock()
	}()

	log := s.Logger.With(zap.Uint("user_id", userID), zap.String("source", s.Source.Name()))

	sourceWorks, err := s.Source.WorksByAuthor(ctx, author)
	if err != nil {
		log.Error("works lookup failed", zap.Error(err))
		return nil, err
	}

	works := make([]AuthorWork, 0, len(sourceWorks))
	for _, w := range sourceWorks {
		works = append(works, AuthorWork{FieldIDs: fieldIDs, Citations: w.Citations})
	}
	deltas := s.Reputation.WorksReputation(works)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for fieldID, delta := range deltas {
			if delta == 0 {
				continue
			}
			var rep models.UserFieldReputation
			err := tx.Where("user_id = ? AND field_id = ?", userID, fieldID).First(&rep).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				rep = models.UserFieldReputation{UserID: userID, FieldID: fieldID, Reputation: delta}
				if err := tx.Create(&rep).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&models.UserFieldReputation{}).
				Where("user_id = ? AND field_id = ?", userID, fieldID).
				Update("reputation", rep.Reputation+delta).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reputationInitsCounter.Inc()
	log.Info("reputation initialized from works",
		zap.Int("works", len(sourceWorks)), zap.Int("fields", len(deltas)))
	return deltas, nil
}
