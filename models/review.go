package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewStatus beschreibt den Bearbeitungszustand eines Reviews.
type ReviewStatus string

const (
	ReviewInProgress ReviewStatus = "in-progress"
	ReviewSubmitted  ReviewStatus = "submitted"
	ReviewAccepted   ReviewStatus = "accepted"
	ReviewRejected   ReviewStatus = "rejected"
)

// CommentStatus beschreibt den Zustand eines einzelnen Review-Kommentars.
// "edit-in-progress" und "reverted" sind durch das Feature
// review-comment-versions-171 geschützt.
type CommentStatus string

const (
	CommentInProgress     CommentStatus = "in-progress"
	CommentEditInProgress CommentStatus = "edit-in-progress"
	CommentPosted         CommentStatus = "posted"
	CommentReverted       CommentStatus = "reverted"
)

// Review ist der vollständige Durchgang eines Gutachters über eine
// Paper-Version: Zusammenfassung, Empfehlung und positionierte Threads.
// Inhalt gehört dem Gutachter bis "submitted"; danach ändert nur noch der
// Paper-Besitzer den Status (accepted/rejected).
type Review struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaperID      uint  `json:"paper_id" gorm:"not null;index"`
	SubmissionID *uint `json:"submission_id,omitempty" gorm:"index"`
	UserID       uint  `json:"user_id" gorm:"not null;index"`

	Version int `json:"version" gorm:"not null;default:1"`
	Number  int `json:"number" gorm:"not null;default:1"`

	Summary        string       `json:"summary" gorm:"type:text"`
	Recommendation string       `json:"recommendation" gorm:"index"` // approve, request-changes, reject
	Status         ReviewStatus `json:"status" gorm:"not null;default:'in-progress';index"`
	// Strukturierte Zusatzangaben der Oberfläche zur Empfehlung.
	RecommendationDetail datatypes.JSON `json:"recommendation_detail,omitempty" gorm:"type:jsonb"`

	Threads []Thread `json:"threads" gorm:"foreignKey:ReviewID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Review) TableName() string {
	return "reviews"
}

// Thread ist eine Kommentar-Gruppe, die an einer Seitenposition des
// gerenderten Papers hängt. Pin-Koordinaten sind auf 0-1 normalisiert.
type Thread struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReviewID uint    `json:"review_id" gorm:"not null;index"`
	Page     int     `json:"page" gorm:"not null"`
	PinX     float64 `json:"pin_x" gorm:"not null"`
	PinY     float64 `json:"pin_y" gorm:"not null"`

	Comments []Comment `json:"comments" gorm:"foreignKey:ThreadID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Thread) TableName() string {
	return "review_comment_threads"
}

// Comment ist die lebende Zeile eines Kommentars. Die Versionshistorie liegt
// in review_comment_versions; Version auf der lebenden Zeile entspricht immer
// max(CommentVersion.Version) für diesen Kommentar.
type Comment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ThreadID    uint          `json:"thread_id" gorm:"not null;index"`
	UserID      uint          `json:"user_id" gorm:"not null;index"`
	ThreadOrder int           `json:"thread_order" gorm:"not null"`
	Status      CommentStatus `json:"status" gorm:"not null;default:'in-progress';index"`
	Content     string        `json:"content" gorm:"type:text"`
	// Die Spalte gehört der Feature-Migration review-comment-versions-171,
	// nicht dem AutoMigrate-Basisschema.
	Version *int `json:"version,omitempty" gorm:"-:migration"`
}

// TableName gibt explizit den Tabellennamen an.
func (Comment) TableName() string {
	return "review_comments"
}

// CommentVersion ist ein unveränderlicher Schnappschuss eines
// Kommentar-Inhalts. Versionen pro Kommentar sind lückenlos ab 1.
type CommentVersion struct {
	CommentID uint      `json:"comment_id" gorm:"primaryKey;autoIncrement:false"`
	Version   int       `json:"version" gorm:"primaryKey;autoIncrement:false"`
	Content   string    `json:"content" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (CommentVersion) TableName() string {
	return "review_comment_versions"
}
