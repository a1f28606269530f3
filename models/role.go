package models

import "time"

// Entity benennt das Objekt, auf das sich eine Berechtigung bezieht.
type Entity string

const (
	EntityPaper        Entity = "Paper"
	EntityPaperVersion Entity = "PaperVersion"
	EntityJournal      Entity = "Journal"
	EntityReview       Entity = "Review"
)

// Action benennt die erlaubte Operation auf einer Entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
)

// Role ist eine benannte Rolle, die an genau ein Paper ODER genau ein
// Journal gebunden ist - nie an beides, nie an keines.
type Role struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `json:"name" gorm:"not null;index"` // z.B. "corresponding-author"
	PaperID   *uint  `json:"paper_id,omitempty" gorm:"index"`
	JournalID *uint  `json:"journal_id,omitempty" gorm:"index"`

	Permissions []RolePermission `json:"permissions,omitempty" gorm:"foreignKey:RoleID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Role) TableName() string {
	return "roles"
}

// Scoped meldet, ob die Rolle das Scope-Invariant erfüllt.
func (r *Role) Scoped() bool {
	return (r.PaperID != nil) != (r.JournalID != nil)
}

// RolePermission ist ein (Entity, Action)-Grant an eine Rolle.
type RolePermission struct {
	RoleID    uint      `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	Entity    Entity    `json:"entity" gorm:"primaryKey;size:64"`
	Action    Action    `json:"action" gorm:"primaryKey;size:32"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (RolePermission) TableName() string {
	return "role_permissions"
}

// UserRole ordnet einem Nutzer eine Rolle zu; Berechtigungen der Rolle
// gelten transitiv für den Nutzer.
type UserRole struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	RoleID    uint      `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (UserRole) TableName() string {
	return "user_roles"
}

// UserPermission ist ein direkt am Nutzer hängender (Entity, Action)-Grant,
// optional auf ein Paper oder Journal eingeschränkt.
type UserPermission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserID    uint   `json:"user_id" gorm:"not null;index"`
	Entity    Entity `json:"entity" gorm:"size:64;not null"`
	Action    Action `json:"action" gorm:"size:32;not null"`
	PaperID   *uint  `json:"paper_id,omitempty" gorm:"index"`
	JournalID *uint  `json:"journal_id,omitempty" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (UserPermission) TableName() string {
	return "user_permissions"
}
