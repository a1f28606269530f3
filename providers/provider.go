package providers

import "context"

// Work ist eine einzelne publizierte Arbeit eines Autors, wie eine externe
// Quelle sie liefert: identifiziert über DOI, bewertet über die Zitatanzahl.
type Work struct {
	DOI       string
	Title     string
	Citations int
}

// Source ist das Interface, das jede externe Zitat-Quelle (z.B. Europe PMC)
// implementieren muss.
type Source interface {
	// WorksByAuthor liefert die Arbeiten eines Autors samt Zitatanzahl.
	WorksByAuthor(ctx context.Context, author string) ([]Work, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "europepmc").
	Name() string
}
