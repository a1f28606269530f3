package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/migrations"
	"journalhub/models"
)

// FeatureChecker meldet, ob ein Feature-Flag aktiv ist. Im Betrieb ist das
// der FeatureService; Tests hängen hier einen Fake ein.
type FeatureChecker interface {
	Enabled(ctx context.Context, name string) bool
}

// CommentService verwaltet Review-Kommentare und ihre Versionshistorie.
//
// Atomaritäts-Kontrakt: jeder Edit-Übergang schreibt die lebende Zeile und
// den zugehörigen Schnappschuss in EINER Transaktion. Dadurch gilt
// jederzeit: Comment.Version == max(CommentVersion.Version) für diesen
// Kommentar, und ein gescheiterter Übergang hinterlässt keinen halben
// Zustand.
type CommentService struct {
	DB       *gorm.DB
	Features FeatureChecker
	Logger   *zap.Logger
}

// NewCommentService erstellt eine neue Instanz des CommentService.
func NewCommentService(db *gorm.DB, features FeatureChecker, logger *zap.Logger) *CommentService {
	return &CommentService{DB: db, Features: features, Logger: logger}
}

// InsertComment legt einen neuen Kommentar mit Status in-progress an.
// Eine Version wird hier noch nicht geschrieben. ThreadOrder wird ans Ende
// des Threads gesetzt, wenn der Aufrufer keinen Wert mitgibt.
func (s *CommentService) InsertComment(ctx context.Context, c *models.Comment) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ThreadOrder == 0 {
			var maxOrder int
			if err := tx.Model(&models.Comment{}).
				Where("thread_id = ?", c.ThreadID).
				Select("COALESCE(MAX(thread_order), 0)").
				Scan(&maxOrder).Error; err != nil {
				return err
			}
			c.ThreadOrder = maxOrder + 1
		}
		c.Status = models.CommentInProgress
		c.Version = nil
		res := tx.Create(c)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsertionFailure
		}
		return nil
	})
}

// InsertCommentVersion schreibt einen unveränderlichen Schnappschuss des
// aktuellen Kommentar-Inhalts und zieht die version-Spalte der lebenden
// Zeile in derselben Transaktion nach. Die neue Versionsnummer ist immer
// max(bestehende)+1, beginnend bei 1.
func (s *CommentService) InsertCommentVersion(ctx context.Context, commentID uint) (int, error) {
	if !s.Features.Enabled(ctx, migrations.FeatureCommentVersions) {
		return 0, ErrFeatureDisabled
	}

	var version int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		version, err = s.insertVersion(tx, commentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	commentVersionsCounter.Inc()
	return version, nil
}

// insertVersion ist der Transaktionskern von InsertCommentVersion: er läuft
// in der übergebenen Transaktion, damit Edit-Übergänge Schnappschuss und
// Zeilen-Update gemeinsam festschreiben können.
func (s *CommentService) insertVersion(tx *gorm.DB, commentID uint) (int, error) {
	var c models.Comment
	if err := tx.First(&c, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	var latest int
	if err := tx.Model(&models.CommentVersion{}).
		Where("comment_id = ?", commentID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error; err != nil {
		return 0, err
	}
	version := latest + 1

	snapshot := models.CommentVersion{CommentID: commentID, Version: version, Content: c.Content}
	if err := tx.Create(&snapshot).Error; err != nil {
		return 0, err
	}

	res := tx.Model(&models.Comment{}).Where("id = ?", commentID).Update("version", version)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUpdateFailure
	}
	return version, nil
}

// UpdateComment schreibt Inhalt und Status der lebenden Zeile. Eine Version
// entsteht hier bewusst NICHT; die Edit-Übergänge (PostComment, StartEdit,
// CommitEdit) rufen insertVersion an den richtigen Stellen.
func (s *CommentService) UpdateComment(ctx context.Context, c *models.Comment) error {
	return s.updateComment(s.DB.WithContext(ctx), c)
}

func (s *CommentService) updateComment(tx *gorm.DB, c *models.Comment) error {
	res := tx.Model(&models.Comment{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{"content": c.Content, "status": c.Status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUpdateFailure
	}
	return nil
}

// PostComment veröffentlicht einen in-progress Kommentar des Autors.
// Mit aktivem Versions-Feature entsteht dabei der Version-1-Schnappschuss -
// in derselben Transaktion wie der Statuswechsel.
func (s *CommentService) PostComment(ctx context.Context, commentID, userID uint) (*models.Comment, error) {
	c, err := s.ownComment(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentInProgress {
		return nil, ErrInvalidStatus
	}

	withVersion := s.Features.Enabled(ctx, migrations.FeatureCommentVersions)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.Status = models.CommentPosted
		if err := s.updateComment(tx, c); err != nil {
			return err
		}
		if withVersion {
			if _, err := s.insertVersion(tx, c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if withVersion {
		commentVersionsCounter.Inc()
	}
	return s.getComment(ctx, commentID)
}

// StartEdit nimmt einen geposteten Kommentar zurück in die Bearbeitung.
// Hat der Kommentar noch keine Historie (gepostet vor Aktivierung des
// Features), wird der aktuelle Stand in derselben Transaktion als Version 1
// gesichert.
func (s *CommentService) StartEdit(ctx context.Context, commentID, userID uint) (*models.Comment, error) {
	if !s.Features.Enabled(ctx, migrations.FeatureCommentVersions) {
		return nil, ErrFeatureDisabled
	}
	c, err := s.ownComment(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentPosted {
		return nil, ErrInvalidStatus
	}

	snapshotted := c.Version == nil
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if snapshotted {
			if _, err := s.insertVersion(tx, c.ID); err != nil {
				return err
			}
		}
		c.Status = models.CommentEditInProgress
		return s.updateComment(tx, c)
	})
	if err != nil {
		return nil, err
	}
	if snapshotted {
		commentVersionsCounter.Inc()
	}
	return s.getComment(ctx, commentID)
}

// CommitEdit übernimmt den neuen Inhalt, setzt den Kommentar zurück auf
// posted und schreibt den nächsten Schnappschuss - beides in einer
// Transaktion, damit ein gescheiterter Schnappschuss den Edit komplett
// zurückrollt.
func (s *CommentService) CommitEdit(ctx context.Context, commentID, userID uint, content string) (*models.Comment, error) {
	if !s.Features.Enabled(ctx, migrations.FeatureCommentVersions) {
		return nil, ErrFeatureDisabled
	}
	c, err := s.ownComment(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentEditInProgress {
		return nil, ErrInvalidStatus
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.Content = content
		c.Status = models.CommentPosted
		if err := s.updateComment(tx, c); err != nil {
			return err
		}
		_, err := s.insertVersion(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	commentVersionsCounter.Inc()
	return s.getComment(ctx, commentID)
}

// RevertEdit verwirft eine laufende Bearbeitung und stellt den Inhalt der
// letzten Version wieder her. Der Kommentar landet als reverted und wird
// beim nächsten PostComment wieder sichtbar - oder direkt wieder posted,
// wenn restore gesetzt ist.
func (s *CommentService) RevertEdit(ctx context.Context, commentID, userID uint, restore bool) (*models.Comment, error) {
	if !s.Features.Enabled(ctx, migrations.FeatureCommentVersions) {
		return nil, ErrFeatureDisabled
	}
	c, err := s.ownComment(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentEditInProgress {
		return nil, ErrInvalidStatus
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.CommentVersion
		err := tx.Where("comment_id = ?", commentID).
			Order("version desc").
			First(&latest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			c.Content = latest.Content
		}

		c.Status = models.CommentReverted
		if restore {
			c.Status = models.CommentPosted
		}
		return s.updateComment(tx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.getComment(ctx, commentID)
}

// DeleteComment entfernt einen noch nicht geposteten Kommentar des Autors.
// Gepostete Kommentare verschwinden nie, sie tragen Historie.
func (s *CommentService) DeleteComment(ctx context.Context, commentID, userID uint) error {
	c, err := s.ownComment(ctx, commentID, userID)
	if err != nil {
		return err
	}
	if c.Status != models.CommentInProgress {
		return ErrInvalidStatus
	}

	res := s.DB.WithContext(ctx).Delete(&models.Comment{}, c.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFailedDeletion
	}
	return nil
}

// ListVersions liefert die Historie eines Kommentars in Versionsreihenfolge.
func (s *CommentService) ListVersions(ctx context.Context, commentID uint) ([]models.CommentVersion, error) {
	if !s.Features.Enabled(ctx, migrations.FeatureCommentVersions) {
		return nil, ErrFeatureDisabled
	}
	var versions []models.CommentVersion
	err := s.DB.WithContext(ctx).
		Where("comment_id = ?", commentID).
		Order("version asc").
		Find(&versions).Error
	return versions, err
}

func (s *CommentService) getComment(ctx context.Context, commentID uint) (*models.Comment, error) {
	var c models.Comment
	if err := s.DB.WithContext(ctx).First(&c, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ownComment lädt den Kommentar und prüft, dass der Aufrufer der Autor ist.
// Nur der Autor darf einen Kommentar in Bearbeitung halten.
func (s *CommentService) ownComment(ctx context.Context, commentID, userID uint) (*models.Comment, error) {
	c, err := s.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return c, nil
}
