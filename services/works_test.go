package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"journalhub/models"
	"journalhub/providers"
)

// stubSource liefert feste Arbeiten; optional blockiert sie, bis release
// geschlossen wird.
type stubSource struct {
	works   []providers.Work
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) WorksByAuthor(ctx context.Context, author string) ([]providers.Work, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.works, s.err
}

func newTestWorksService(t *testing.T, source providers.Source) *WorksService {
	t.Helper()
	db := newTestDB(t)
	rep := NewReputationService(testReputationConfig(), db, zap.NewNop())
	return NewWorksService(source, rep, db, zap.NewNop())
}

func TestInitializeReputationWritesDeltas(t *testing.T) {
	source := &stubSource{works: []providers.Work{
		{DOI: "10.1/a", Citations: 3},
		{DOI: "10.1/b", Citations: 7},
	}}
	svc := newTestWorksService(t, source)
	ctx := context.Background()

	// Vorbestand in Fachgebiet 1, Fachgebiet 2 ist neu.
	require.NoError(t, svc.DB.Create(&models.UserFieldReputation{UserID: 9, FieldID: 1, Reputation: 5}).Error)

	deltas, err := svc.InitializeReputation(ctx, 9, "Doe J", []uint{1, 2})
	require.NoError(t, err)

	// 10 Punkte pro Zitat, 10 Zitate gesamt.
	assert.Equal(t, map[uint]int64{1: 100, 2: 100}, deltas)

	var rep models.UserFieldReputation
	require.NoError(t, svc.DB.Where("user_id = ? AND field_id = ?", 9, 1).First(&rep).Error)
	assert.Equal(t, int64(105), rep.Reputation)
	rep = models.UserFieldReputation{}
	require.NoError(t, svc.DB.Where("user_id = ? AND field_id = ?", 9, 2).First(&rep).Error)
	assert.Equal(t, int64(100), rep.Reputation)
}

func TestInitializeReputationRequiresFields(t *testing.T) {
	svc := newTestWorksService(t, &stubSource{})
	_, err := svc.InitializeReputation(context.Background(), 9, "Doe J", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitializeReputationSingleFlight(t *testing.T) {
	source := &stubSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestWorksService(t, source)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.InitializeReputation(ctx, 9, "Doe J", []uint{1})
		done <- err
	}()
	<-source.started

	_, err := svc.InitializeReputation(ctx, 9, "Doe J", []uint{1})
	assert.ErrorIs(t, err, ErrInProgress)

	close(source.release)
	require.NoError(t, <-done)

	// Nach Abschluss ist der Nutzer wieder frei.
	source.started = nil
	source.release = nil
	_, err = svc.InitializeReputation(ctx, 9, "Doe J", []uint{1})
	assert.NoError(t, err)
}
