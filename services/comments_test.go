package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"journalhub/models"
)

func newTestCommentService(t *testing.T, versionsEnabled bool) *CommentService {
	t.Helper()
	db := newTestDB(t)
	return NewCommentService(db, &staticFeatures{enabled: versionsEnabled}, zap.NewNop())
}

func seedComment(t *testing.T, svc *CommentService, userID uint, content string) *models.Comment {
	t.Helper()
	c := &models.Comment{ThreadID: 1, UserID: userID, Content: content}
	require.NoError(t, svc.InsertComment(context.Background(), c))
	return c
}

func TestInsertCommentAssignsThreadOrder(t *testing.T) {
	svc := newTestCommentService(t, true)

	first := seedComment(t, svc, 5, "a")
	second := seedComment(t, svc, 6, "b")

	assert.Equal(t, 1, first.ThreadOrder)
	assert.Equal(t, 2, second.ThreadOrder)
	assert.Equal(t, models.CommentInProgress, first.Status)
	assert.Nil(t, first.Version)
}

func TestInsertCommentVersionFeatureDisabled(t *testing.T) {
	svc := newTestCommentService(t, false)
	c := seedComment(t, svc, 5, "a")

	_, err := svc.InsertCommentVersion(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = svc.StartEdit(context.Background(), c.ID, 5)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = svc.ListVersions(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestInsertCommentVersionContiguous(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "a")

	for want := 1; want <= 4; want++ {
		got, err := svc.InsertCommentVersion(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	versions, err := svc.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version, "versions must be gapless starting at 1")
		assert.Equal(t, c.ID, v.CommentID)
	}

	// Die lebende Zeile trägt immer die höchste Versionsnummer.
	var live models.Comment
	require.NoError(t, svc.DB.First(&live, c.ID).Error)
	require.NotNil(t, live.Version)
	assert.Equal(t, 4, *live.Version)
}

func TestUpdateCommentDoesNotVersion(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "a")

	c.Content = "b"
	require.NoError(t, svc.UpdateComment(ctx, c))

	var count int64
	require.NoError(t, svc.DB.Model(&models.CommentVersion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateCommentMissingRow(t *testing.T) {
	svc := newTestCommentService(t, true)
	err := svc.UpdateComment(context.Background(), &models.Comment{ID: 999, Content: "x", Status: models.CommentPosted})
	assert.ErrorIs(t, err, ErrUpdateFailure)
}

func TestPostCommentOnlyAuthor(t *testing.T) {
	svc := newTestCommentService(t, true)
	c := seedComment(t, svc, 5, "a")

	_, err := svc.PostComment(context.Background(), c.ID, 6)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestEditFlowScenario(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "v1")

	posted, err := svc.PostComment(ctx, c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.CommentPosted, posted.Status)
	require.NotNil(t, posted.Version)
	assert.Equal(t, 1, *posted.Version)

	editing, err := svc.StartEdit(ctx, c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.CommentEditInProgress, editing.Status)

	final, err := svc.CommitEdit(ctx, c.ID, 5, "v2")
	require.NoError(t, err)
	assert.Equal(t, models.CommentPosted, final.Status)
	assert.Equal(t, "v2", final.Content)
	require.NotNil(t, final.Version)
	assert.Equal(t, 2, *final.Version)

	versions, err := svc.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].Content)
	assert.Equal(t, "v2", versions[1].Content)
}

func TestStartEditSnapshotsLegacyComment(t *testing.T) {
	// Kommentar wurde gepostet, bevor das Versions-Feature aktiv war:
	// keine Historie, Version nil.
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "legacy")
	c.Status = models.CommentPosted
	require.NoError(t, svc.UpdateComment(ctx, c))

	_, err := svc.StartEdit(ctx, c.ID, 5)
	require.NoError(t, err)

	versions, err := svc.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "legacy", versions[0].Content)
}

func TestRevertEditRestoresLastVersion(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "v1")

	_, err := svc.PostComment(ctx, c.ID, 5)
	require.NoError(t, err)
	_, err = svc.StartEdit(ctx, c.ID, 5)
	require.NoError(t, err)

	// Zwischenstand auf der lebenden Zeile, noch nicht committet.
	c.Content = "half-finished edit"
	c.Status = models.CommentEditInProgress
	require.NoError(t, svc.UpdateComment(ctx, c))

	reverted, err := svc.RevertEdit(ctx, c.ID, 5, true)
	require.NoError(t, err)
	assert.Equal(t, models.CommentPosted, reverted.Status)
	assert.Equal(t, "v1", reverted.Content)

	versions, err := svc.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "revert must not create a new version")
}

func TestPostCommentWrongStatus(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "a")

	_, err := svc.PostComment(ctx, c.ID, 5)
	require.NoError(t, err)

	// Doppeltes Posten ist kein legaler Übergang.
	_, err = svc.PostComment(ctx, c.ID, 5)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCommitEditSnapshotFailureRollsBackEdit(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "v1")

	_, err := svc.PostComment(ctx, c.ID, 5)
	require.NoError(t, err)
	_, err = svc.StartEdit(ctx, c.ID, 5)
	require.NoError(t, err)

	// Schnappschüsse lassen sich nicht mehr schreiben.
	require.NoError(t, svc.DB.Migrator().DropTable(&models.CommentVersion{}))

	_, err = svc.CommitEdit(ctx, c.ID, 5, "v2")
	require.Error(t, err)

	// Gescheiterter Commit: die lebende Zeile bleibt unangetastet.
	var live models.Comment
	require.NoError(t, svc.DB.First(&live, c.ID).Error)
	assert.Equal(t, "v1", live.Content)
	assert.Equal(t, models.CommentEditInProgress, live.Status)
	require.NotNil(t, live.Version)
	assert.Equal(t, 1, *live.Version)
}

func TestPostCommentSnapshotFailureRollsBackStatus(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()
	c := seedComment(t, svc, 5, "entwurf")

	require.NoError(t, svc.DB.Migrator().DropTable(&models.CommentVersion{}))

	_, err := svc.PostComment(ctx, c.ID, 5)
	require.Error(t, err)

	var live models.Comment
	require.NoError(t, svc.DB.First(&live, c.ID).Error)
	assert.Equal(t, models.CommentInProgress, live.Status)
	assert.Nil(t, live.Version)
}

func TestDeleteComment(t *testing.T) {
	svc := newTestCommentService(t, true)
	ctx := context.Background()

	draft := seedComment(t, svc, 5, "weg damit")
	require.NoError(t, svc.DeleteComment(ctx, draft.ID, 5))
	var count int64
	require.NoError(t, svc.DB.Model(&models.Comment{}).Where("id = ?", draft.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	foreign := seedComment(t, svc, 6, "fremd")
	assert.ErrorIs(t, svc.DeleteComment(ctx, foreign.ID, 5), ErrNotAuthorized)

	posted := seedComment(t, svc, 5, "bleibt")
	_, err := svc.PostComment(ctx, posted.ID, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteComment(ctx, posted.ID, 5), ErrInvalidStatus)
}
