package models

import "time"

// FeatureStatus beschreibt den Lebenszyklus-Zustand eines Feature-Flags.
type FeatureStatus string

const (
	FeatureUncreated      FeatureStatus = "uncreated"
	FeatureCreated        FeatureStatus = "created"
	FeatureInitializing   FeatureStatus = "initializing"
	FeatureInitialized    FeatureStatus = "initialized"
	FeatureMigrating      FeatureStatus = "migrating"
	FeatureMigrated       FeatureStatus = "migrated"
	FeatureEnabled        FeatureStatus = "enabled"
	FeatureDisabled       FeatureStatus = "disabled"
	FeatureRollingBack    FeatureStatus = "rolling-back"
	FeatureRolledBack     FeatureStatus = "rolled-back"
	FeatureUninitializing FeatureStatus = "uninitializing"
	FeatureUninitialized  FeatureStatus = "uninitialized"
)

// InProgress meldet, ob der Status ein Marker für eine laufende Migration ist.
// Solange ein Marker gesetzt ist, darf keine weitere Transition starten.
func (s FeatureStatus) InProgress() bool {
	switch s {
	case FeatureInitializing, FeatureMigrating, FeatureRollingBack, FeatureUninitializing:
		return true
	}
	return false
}

// Valid meldet, ob der Status einer der bekannten Zustände ist.
func (s FeatureStatus) Valid() bool {
	switch s {
	case FeatureUncreated, FeatureCreated, FeatureInitializing, FeatureInitialized,
		FeatureMigrating, FeatureMigrated, FeatureEnabled, FeatureDisabled,
		FeatureRollingBack, FeatureRolledBack, FeatureUninitializing, FeatureUninitialized:
		return true
	}
	return false
}

// Feature ist der persistierte Status eines benannten Feature-Flags.
// Die Zeile existiert erst, wenn ein Operator das Feature explizit anlegt;
// der Status wird ausschließlich vom FeatureService verändert.
type Feature struct {
	Name      string        `json:"name" gorm:"primaryKey;size:128"`
	Status    FeatureStatus `json:"status" gorm:"not null;default:'created';index"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Feature) TableName() string {
	return "features"
}
