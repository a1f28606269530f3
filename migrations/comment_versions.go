package migrations

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/models"
)

// CommentVersions ist die Migration hinter review-comment-versions-171:
// eine Historientabelle für Kommentar-Inhalte plus eine nullable
// version-Spalte auf der lebenden Kommentar-Zeile. Die zusätzlichen
// Kommentar-Status (edit-in-progress, reverted) sind reine String-Werte
// und brauchen kein Schema.
type CommentVersions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewCommentVersions erstellt die Migration.
func NewCommentVersions(db *gorm.DB, log *zap.Logger) *CommentVersions {
	return &CommentVersions{DB: db, Logger: log}
}

// Initialize legt die Versionstabelle und die version-Spalte an. Beide
// Schritte sind einzeln idempotent, ein halb angewendeter Zustand ist
// daher unkritisch. Schlägt der zweite Schritt fehl, wird der erste
// kompensiert; scheitert auch das, ist der Fehler fatal.
func (m *CommentVersions) Initialize(ctx context.Context) error {
	db := m.DB.WithContext(ctx)
	migrator := db.Migrator()

	createdTable := false
	if !migrator.HasTable(&models.CommentVersion{}) {
		if err := migrator.CreateTable(&models.CommentVersion{}); err != nil {
			return RolledBack("initialize", err)
		}
		createdTable = true
	}

	// Die version-Spalte ist per gorm-Tag vom AutoMigrate ausgenommen; sie
	// entsteht ausschließlich hier, deshalb direktes DDL statt AddColumn.
	if !migrator.HasColumn(&models.Comment{}, "version") {
		if err := db.Exec("ALTER TABLE review_comments ADD COLUMN version integer").Error; err != nil {
			if !createdTable {
				return RolledBack("initialize", err)
			}
			if dropErr := migrator.DropTable(&models.CommentVersion{}); dropErr != nil {
				return NoRollback("initialize", err, dropErr)
			}
			return RolledBack("initialize", err)
		}
	}

	m.Logger.Info("comment versions schema initialized")
	return nil
}

// Up schreibt für jeden bereits geposteten Kommentar ohne Historie einen
// Version-1-Schnappschuss und setzt die lebende Zeile auf Version 1.
// Der Backfill ist über den Primärschlüssel verankert und daher beliebig
// wiederholbar.
func (m *CommentVersions) Up(ctx context.Context) error {
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comments []models.Comment
		if err := tx.
			Where("status = ?", models.CommentPosted).
			Where("id NOT IN (?)", tx.Model(&models.CommentVersion{}).Select("comment_id")).
			Find(&comments).Error; err != nil {
			return err
		}

		for _, c := range comments {
			v := models.CommentVersion{CommentID: c.ID, Version: 1, Content: c.Content}
			if err := tx.Create(&v).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Comment{}).Where("id = ?", c.ID).Update("version", 1).Error; err != nil {
				return err
			}
		}

		m.Logger.Info("comment versions backfilled", zap.Int("count", len(comments)))
		return nil
	})
	if err != nil {
		// Transaktion ist zurückgerollt, Ausgangszustand steht wieder.
		return RolledBack("up", err)
	}
	return nil
}

// Down entfernt den Backfill wieder: nur Kommentare, deren Historie allein
// aus dem Version-1-Schnappschuss besteht, werden angefasst. Echte
// Edit-Historie bleibt stehen.
func (m *CommentVersions) Down(ctx context.Context) error {
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.CommentVersion{}).
			Group("comment_id").
			Having("MAX(version) = 1").
			Pluck("comment_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("comment_id IN ? AND version = 1", ids).Delete(&models.CommentVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("id IN ?", ids).Update("version", nil).Error; err != nil {
			return err
		}

		m.Logger.Info("comment version backfill removed", zap.Int("count", len(ids)))
		return nil
	})
	if err != nil {
		return RolledBack("down", err)
	}
	return nil
}

// Uninitialize kehrt Initialize um: Versionstabelle und version-Spalte
// fallen weg. Die zusätzlichen Status-Werte bleiben, sie sind rein additiv.
func (m *CommentVersions) Uninitialize(ctx context.Context) error {
	db := m.DB.WithContext(ctx)
	migrator := db.Migrator()

	if migrator.HasTable(&models.CommentVersion{}) {
		if err := migrator.DropTable(&models.CommentVersion{}); err != nil {
			return RolledBack("uninitialize", err)
		}
	}
	if migrator.HasColumn(&models.Comment{}, "version") {
		if err := migrator.DropColumn(&models.Comment{}, "version"); err != nil {
			// Tabelle ist weg, Spalte noch da: halb angewendet ist für
			// Uninitialize erlaubt, der Schritt ist wiederholbar.
			return RolledBack("uninitialize", err)
		}
	}

	m.Logger.Info("comment versions schema removed")
	return nil
}
