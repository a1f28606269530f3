package services

import "errors"

// Fehlerarten des Kerns. Validierungs- und Vorbedingungsfehler werden ohne
// Seiteneffekte an den Aufrufer gereicht; der HTTP-Layer bildet sie auf
// Status-Codes ab.
var (
	// ErrMissingFeature: der Feature-Name steht nicht in der Registry.
	ErrMissingFeature = errors.New("missing-feature")
	// ErrInvalidStatus: die angeforderte Transition steht nicht in der
	// Zustandstabelle.
	ErrInvalidStatus = errors.New("invalid-status")
	// ErrInProgress: auf dem Feature läuft bereits eine Transition.
	ErrInProgress = errors.New("in-progress")
	// ErrNotCreated: Transition auf einem Feature ohne persistierte Zeile.
	ErrNotCreated = errors.New("not-created")
	// ErrAlreadyInserted: das Feature wurde bereits angelegt.
	ErrAlreadyInserted = errors.New("already-inserted")
	// ErrFeatureDisabled: Versionierungs-API ohne aktiviertes Flag benutzt.
	ErrFeatureDisabled = errors.New("feature-disabled")

	// Storage-Layer meldete null betroffene Zeilen, wo eine erwartet war.
	ErrInsertionFailure = errors.New("insertion-failure")
	ErrUpdateFailure    = errors.New("update-failure")
	ErrFailedDeletion   = errors.New("failed-deletion")

	// ErrNotAuthorized: der Nutzer darf die Operation nicht ausführen.
	ErrNotAuthorized = errors.New("not-authorized")
	// ErrNotFound: die referenzierte Ressource existiert nicht.
	ErrNotFound = errors.New("not-found")

	// ErrInvalidScope: eine Rolle muss an genau ein Paper oder genau ein
	// Journal gebunden sein.
	ErrInvalidScope = errors.New("invalid-scope")

	// ErrAlreadyVoted: pro (paper, user) ist nur eine Stimme erlaubt.
	ErrAlreadyVoted = errors.New("already-voted")
	// ErrResponseTooShort: eine Stimme verlangt eine Response mit
	// Mindestwortzahl.
	ErrResponseTooShort = errors.New("response-too-short")
)
