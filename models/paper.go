package models

import "time"

// User ist die minimale Nutzer-Repräsentation; Authentifizierung und
// Sessions liegen beim vorgelagerten Auth-Dienst.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email" gorm:"uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (User) TableName() string {
	return "users"
}

// Paper repräsentiert eine eingereichte wissenschaftliche Arbeit.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string `json:"title" gorm:"not null"`
	UserID      uint   `json:"user_id" gorm:"not null;index"` // Besitzer (Corresponding Author)
	IsPublished bool   `json:"is_published" gorm:"default:false;index"`

	Fields []Field `json:"fields,omitempty" gorm:"many2many:paper_fields;"`
}

// TableName gibt explizit den Tabellennamen an.
func (Paper) TableName() string {
	return "papers"
}

// Field ist ein Fachgebiet. AvgReputationPerPaper ist der per Cron
// aktualisierte Nenner für die Review-/Referee-Schwellwerte.
type Field struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name                  string  `json:"name" gorm:"uniqueIndex;not null"` // z.B. "molecular-biology"
	AvgReputationPerPaper float64 `json:"avg_reputation_per_paper" gorm:"default:0"`
}

// TableName gibt explizit den Tabellennamen an.
func (Field) TableName() string {
	return "fields"
}

// UserFieldReputation hält die aufsummierte Reputation eines Nutzers in
// einem Fachgebiet.
type UserFieldReputation struct {
	UserID     uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	FieldID    uint      `json:"field_id" gorm:"primaryKey;autoIncrement:false"`
	Reputation int64     `json:"reputation" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (UserFieldReputation) TableName() string {
	return "user_field_reputation"
}

// Journal ist eine Zeitschrift, bei der Papers eingereicht werden können.
type Journal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Journal) TableName() string {
	return "journals"
}

// Submission verknüpft ein Paper mit einem Journal-Einreichungsprozess.
type Submission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaperID   uint   `json:"paper_id" gorm:"not null;index"`
	JournalID uint   `json:"journal_id" gorm:"not null;index"`
	Status    string `json:"status" gorm:"not null;default:'submitted';index"` // submitted, review, published, rejected
}

// TableName gibt explizit den Tabellennamen an.
func (Submission) TableName() string {
	return "journal_submissions"
}
