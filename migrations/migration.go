package migrations

import (
	"context"
	"fmt"
)

// Migration ist die vierphasige Schema-Änderung hinter einem Feature-Flag.
//
// Initialize legt additive, nicht-destruktive Schema-Teile an (neue Tabellen,
// nullable Spalten) und muss halb angewendet liegen bleiben dürfen.
// Up migriert Daten in das neue Schema (Backfill) und muss ohne doppelte
// Zeilen wiederholbar sein; Down kehrt Up nicht-destruktiv um.
// Uninitialize kehrt Initialize um und darf für rein additive Änderungen
// ein No-op sein.
type Migration interface {
	Initialize(ctx context.Context) error
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Uninitialize(ctx context.Context) error
}

// MigrationError meldet das Scheitern eines Migrationsschritts.
//
// Recoverable bedeutet: die Migration hat ihre eigenen Teiländerungen
// erfolgreich kompensiert, die Datenbank ist wieder im Ausgangszustand und
// der Feature-Status darf auf den letzten bekannten Zustand zurückfallen.
// Nicht-recoverable ("no-rollback") bedeutet: auch die Kompensation ist
// gescheitert, die Datenbank ist in unbekanntem Zustand und ein Operator
// muss eingreifen. Dieser Fall darf nirgends verschluckt werden.
type MigrationError struct {
	Step        string // initialize, up, down, uninitialize
	Recoverable bool
	Cause       error
	RollbackErr error // gesetzt, wenn die Kompensation selbst gescheitert ist
}

func (e *MigrationError) Error() string {
	if e.Recoverable {
		return fmt.Sprintf("migration %s failed, rolled back: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("migration %s failed, NO ROLLBACK (rollback error: %v): %v", e.Step, e.RollbackErr, e.Cause)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// RolledBack baut den recoverable Fehlerfall.
func RolledBack(step string, cause error) *MigrationError {
	return &MigrationError{Step: step, Recoverable: true, Cause: cause}
}

// NoRollback baut den fatalen Fehlerfall.
func NoRollback(step string, cause, rollbackErr error) *MigrationError {
	return &MigrationError{Step: step, Recoverable: false, Cause: cause, RollbackErr: rollbackErr}
}
