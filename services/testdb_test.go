package services

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"journalhub/models"
)

// newTestDB öffnet eine frische In-Memory-Datenbank mit dem kompletten
// Schema inklusive der feature-gebundenen Versionstabelle.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Feature{}, &models.User{}, &models.Paper{}, &models.Field{},
		&models.UserFieldReputation{}, &models.Journal{}, &models.Submission{},
		&models.Review{}, &models.Thread{}, &models.Comment{}, &models.CommentVersion{},
		&models.Vote{}, &models.Response{},
		&models.Role{}, &models.RolePermission{}, &models.UserRole{}, &models.UserPermission{},
	))
	// Die version-Spalte entsteht produktiv erst über die Feature-Migration;
	// für die Service-Tests wird sie direkt angelegt.
	require.NoError(t, db.Exec("ALTER TABLE review_comments ADD COLUMN version integer").Error)
	return db
}

// staticFeatures ist ein FeatureChecker mit festem Schaltzustand.
type staticFeatures struct {
	enabled bool
}

func (f *staticFeatures) Enabled(ctx context.Context, name string) bool {
	return f.enabled
}
