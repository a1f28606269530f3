package models

import "time"

// Vote ist die Stimme eines Nutzers zu einem veröffentlichten Paper.
// Pro (paper, user) existiert höchstens eine Stimme; der Paper-Score wird
// beim Lesen aufsummiert und nie redundant gespeichert.
type Vote struct {
	PaperID   uint      `json:"paper_id" gorm:"primaryKey;autoIncrement:false"`
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Score     int       `json:"score" gorm:"not null"` // +1 oder -1
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Vote) TableName() string {
	return "paper_votes"
}

// Response ist ein öffentlicher Antworttext zu einem Paper. Eine Response
// kann ohne Stimme gepostet werden; eine Stimme verlangt aber eine
// Response mit Mindestlänge.
type Response struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaperID uint   `json:"paper_id" gorm:"not null;index"`
	UserID  uint   `json:"user_id" gorm:"not null;index"`
	Content string `json:"content" gorm:"type:text;not null"`
	Vote    int    `json:"vote" gorm:"not null;default:0"` // -1, 0, +1
}

// TableName gibt explizit den Tabellennamen an.
func (Response) TableName() string {
	return "paper_responses"
}
