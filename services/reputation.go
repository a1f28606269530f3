package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/config"
	"journalhub/models"
)

// ReputationService rechnet Stimmen, Scores und Fachgebiets-Reputation.
// Der Paper-Score wird immer beim Lesen aufsummiert, nie redundant
// gespeichert.
type ReputationService struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewReputationService erstellt eine neue Instanz des ReputationService.
func NewReputationService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *ReputationService {
	return &ReputationService{Config: cfg, DB: db, Logger: logger}
}

// WordCount zählt whitespace-getrennte Tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// PaperScore liefert die Summe aller Stimmen zu einem Paper.
func (s *ReputationService) PaperScore(ctx context.Context, paperID uint) (int64, error) {
	var score int64
	err := s.DB.WithContext(ctx).Model(&models.Vote{}).
		Where("paper_id = ?", paperID).
		Select("COALESCE(SUM(score), 0)").
		Scan(&score).Error
	return score, err
}

// CastVote verarbeitet eine Response mit optionaler Stimme zu einem
// veröffentlichten Paper. Eine Response ohne Stimme ist immer erlaubt;
// eine Stimme verlangt eine Response mit Mindestwortzahl, und pro
// (paper, user) gibt es höchstens eine Stimme.
func (s *ReputationService) CastVote(ctx context.Context, paperID, userID uint, score int, response string) error {
	if score < -1 || score > 1 {
		return ErrInvalidStatus
	}

	var paper models.Paper
	if err := s.DB.WithContext(ctx).First(&paper, paperID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !paper.IsPublished {
		return ErrNotAuthorized
	}

	if score != 0 && WordCount(response) < s.Config.VoteMinResponseWords {
		return ErrResponseTooShort
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if score != 0 {
			// Der zusammengesetzte Primärschlüssel (paper_id, user_id)
			// erzwingt eine Stimme pro Nutzer, auch unter Nebenläufigkeit.
			err := tx.Create(&models.Vote{PaperID: paperID, UserID: userID, Score: score}).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			if err != nil {
				return err
			}
		}
		if response != "" {
			r := models.Response{PaperID: paperID, UserID: userID, Content: response, Vote: score}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if score != 0 {
		votesCastCounter.Inc()
	}
	return nil
}

// ReviewThreshold ist der Reputations-Schwellwert, um in einem Fachgebiet
// Reviews zu schreiben.
func (s *ReputationService) ReviewThreshold(field *models.Field) float64 {
	return s.Config.ReputationThresholdReview * field.AvgReputationPerPaper
}

// RefereeThreshold ist der Schwellwert, um in einem Fachgebiet als Referee
// aufzutreten.
func (s *ReputationService) RefereeThreshold(field *models.Field) float64 {
	return s.Config.ReputationThresholdReferee * field.AvgReputationPerPaper
}

// CanReview meldet, ob der Nutzer in mindestens einem Fachgebiet des
// Papers den Review-Schwellwert erreicht.
func (s *ReputationService) CanReview(ctx context.Context, userID, paperID uint) (bool, error) {
	return s.meetsThreshold(ctx, userID, paperID, s.Config.ReputationThresholdReview)
}

// CanReferee meldet, ob der Nutzer in mindestens einem Fachgebiet des
// Papers den Referee-Schwellwert erreicht.
func (s *ReputationService) CanReferee(ctx context.Context, userID, paperID uint) (bool, error) {
	return s.meetsThreshold(ctx, userID, paperID, s.Config.ReputationThresholdReferee)
}

func (s *ReputationService) meetsThreshold(ctx context.Context, userID, paperID uint, multiplier float64) (bool, error) {
	var paper models.Paper
	err := s.DB.WithContext(ctx).Preload("Fields").First(&paper, paperID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}

	for _, field := range paper.Fields {
		var rep models.UserFieldReputation
		err := s.DB.WithContext(ctx).
			Where("user_id = ? AND field_id = ?", userID, field.ID).
			First(&rep).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if float64(rep.Reputation) >= multiplier*field.AvgReputationPerPaper {
			return true, nil
		}
	}
	return false, nil
}

// AwardReviewAccepted schreibt dem Gutachter die feste Gutschrift in allen
// Fachgebieten des begutachteten Papers gut. Eine Ablehnung vergibt nichts
// und zieht nichts ab.
func (s *ReputationService) AwardReviewAccepted(ctx context.Context, review *models.Review) error {
	var paper models.Paper
	if err := s.DB.WithContext(ctx).Preload("Fields").First(&paper, review.PaperID).Error; err != nil {
		return err
	}

	award := s.Config.ReviewAcceptAward
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, field := range paper.Fields {
			var rep models.UserFieldReputation
			err := tx.Where("user_id = ? AND field_id = ?", review.UserID, field.ID).First(&rep).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				rep = models.UserFieldReputation{UserID: review.UserID, FieldID: field.ID, Reputation: award}
				if err := tx.Create(&rep).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			res := tx.Model(&models.UserFieldReputation{}).
				Where("user_id = ? AND field_id = ?", review.UserID, field.ID).
				Update("reputation", rep.Reputation+award)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrUpdateFailure
			}
		}
		return nil
	})
}

// AuthorWork ist eine Arbeit eines Autors mit ihren Fachgebieten und der
// Zitatanzahl, wie sie der externe Initialisierungs-Job anliefert.
type AuthorWork struct {
	FieldIDs  []uint
	Citations int
}

// WorksReputation ist die reine Funktion (Arbeiten, Zitate) ->
// Reputations-Deltas pro Fachgebiet. Die Job-Queue-Mechanik liegt beim
// externen Aufrufer.
func (s *ReputationService) WorksReputation(works []AuthorWork) map[uint]int64 {
	deltas := make(map[uint]int64)
	for _, work := range works {
		delta := int64(math.Round(float64(work.Citations) * s.Config.ReputationPerCitation))
		for _, fieldID := range work.FieldIDs {
			deltas[fieldID] += delta
		}
	}
	return deltas
}

// RefreshFieldAverages berechnet für jedes Fachgebiet die durchschnittliche
// Reputation pro Paper neu. Läuft per Cron; die Werte sind die Nenner der
// Schwellwerte.
func (s *ReputationService) RefreshFieldAverages(ctx context.Context) error {
	var fields []models.Field
	if err := s.DB.WithContext(ctx).Find(&fields).Error; err != nil {
		return err
	}

	for _, field := range fields {
		var total int64
		if err := s.DB.WithContext(ctx).Model(&models.UserFieldReputation{}).
			Where("field_id = ?", field.ID).
			Select("COALESCE(SUM(reputation), 0)").
			Scan(&total).Error; err != nil {
			return err
		}

		var papers int64
		if err := s.DB.WithContext(ctx).Table("paper_fields").
			Where("field_id = ?", field.ID).
			Count(&papers).Error; err != nil {
			return err
		}

		avg := 0.0
		if papers > 0 {
			avg = float64(total) / float64(papers)
		}
		if err := s.DB.WithContext(ctx).Model(&models.Field{}).
			Where("id = ?", field.ID).
			Update("avg_reputation_per_paper", avg).Error; err != nil {
			return err
		}
	}

	s.Logger.Info("field reputation averages refreshed", zap.Int("fields", len(fields)))
	return nil
}
