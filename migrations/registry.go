package migrations

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature-Namen. Der Suffix ist die Ticket-Nummer der Einführung.
const (
	FeatureCommentVersions = "review-comment-versions-171"
)

// Registry bildet Feature-Namen auf ihre Migrationen ab. Die Registry wird
// explizit in den FeatureService injiziert; Features ohne Eintrag kommen
// nie über "uncreated" hinaus.
type Registry map[string]Migration

// Lookup gibt die Migration zu einem Feature-Namen zurück.
func (r Registry) Lookup(name string) (Migration, bool) {
	m, ok := r[name]
	return m, ok
}

// Default baut die Registry mit allen produktiven Migrationen.
func Default(db *gorm.DB, log *zap.Logger) Registry {
	return Registry{
		FeatureCommentVersions: NewCommentVersions(db, log),
	}
}
