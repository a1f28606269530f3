package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/models"
)

// ReviewRow ist eine flache Zeile aus dem Join Review x Thread x Comment.
// Thread- und Kommentar-Spalten sind nullable, weil der Join links ist und
// eine Zeile pro Kind-Fächerung wiederholt wird.
type ReviewRow struct {
	ReviewID       uint                `gorm:"column:review_id"`
	PaperID        uint                `gorm:"column:paper_id"`
	SubmissionID   *uint               `gorm:"column:submission_id"`
	UserID         uint                `gorm:"column:user_id"`
	Version        int                 `gorm:"column:version"`
	Number         int                 `gorm:"column:number"`
	Summary        string              `gorm:"column:summary"`
	Recommendation string              `gorm:"column:recommendation"`
	Status         models.ReviewStatus `gorm:"column:status"`
	CreatedAt      time.Time           `gorm:"column:review_created_at"`
	UpdatedAt      time.Time           `gorm:"column:review_updated_at"`

	ThreadID        *uint     `gorm:"column:thread_id"`
	ThreadPage      int       `gorm:"column:thread_page"`
	ThreadPinX      float64   `gorm:"column:thread_pin_x"`
	ThreadPinY      float64   `gorm:"column:thread_pin_y"`
	ThreadCreatedAt time.Time `gorm:"column:thread_created_at"`

	CommentID        *uint                `gorm:"column:comment_id"`
	CommentUserID    uint                 `gorm:"column:comment_user_id"`
	ThreadOrder      int                  `gorm:"column:thread_order"`
	CommentStatus    models.CommentStatus `gorm:"column:comment_status"`
	CommentContent   string               `gorm:"column:comment_content"`
	CommentVersion   *int                 `gorm:"column:comment_version"`
	CommentCreatedAt time.Time            `gorm:"column:comment_created_at"`
}

// HydrateReviews baut aus flachen Join-Zeilen die verschachtelten
// Review->Thread->Comment Objekte. Dedupliziert wird first-seen-wins über
// die Primärschlüssel; die Eingabereihenfolge bleibt exakt erhalten, sie
// trägt die Top-nach-unten-Erzählung der Oberfläche.
func HydrateReviews(rows []ReviewRow) []*models.Review {
	reviews := make(map[uint]*models.Review)
	var reviewOrder []uint

	threads := make(map[uint]*models.Thread)
	threadOrder := make(map[uint][]uint) // reviewID -> threadIDs
	seenComment := make(map[uint]bool)

	for _, row := range rows {
		if _, ok := reviews[row.ReviewID]; !ok {
			reviews[row.ReviewID] = &models.Review{
				ID:             row.ReviewID,
				CreatedAt:      row.CreatedAt,
				UpdatedAt:      row.UpdatedAt,
				PaperID:        row.PaperID,
				SubmissionID:   row.SubmissionID,
				UserID:         row.UserID,
				Version:        row.Version,
				Number:         row.Number,
				Summary:        row.Summary,
				Recommendation: row.Recommendation,
				Status:         row.Status,
				Threads:        []models.Thread{},
			}
			reviewOrder = append(reviewOrder, row.ReviewID)
		}

		if row.ThreadID == nil {
			continue
		}
		tid := *row.ThreadID
		if _, ok := threads[tid]; !ok {
			threads[tid] = &models.Thread{
				ID:        tid,
				CreatedAt: row.ThreadCreatedAt,
				ReviewID:  row.ReviewID,
				Page:      row.ThreadPage,
				PinX:      row.ThreadPinX,
				PinY:      row.ThreadPinY,
				Comments:  []models.Comment{},
			}
			threadOrder[row.ReviewID] = append(threadOrder[row.ReviewID], tid)
		}

		if row.CommentID == nil || seenComment[*row.CommentID] {
			continue
		}
		seenComment[*row.CommentID] = true
		threads[tid].Comments = append(threads[tid].Comments, models.Comment{
			ID:          *row.CommentID,
			CreatedAt:   row.CommentCreatedAt,
			ThreadID:    tid,
			UserID:      row.CommentUserID,
			ThreadOrder: row.ThreadOrder,
			Status:      row.CommentStatus,
			Content:     row.CommentContent,
			Version:     row.CommentVersion,
		})
	}

	result := make([]*models.Review, 0, len(reviewOrder))
	for _, rid := range reviewOrder {
		review := reviews[rid]
		for _, tid := range threadOrder[rid] {
			review.Threads = append(review.Threads, *threads[tid])
		}
		result = append(result, review)
	}
	return result
}

// SelectVisibleComments filtert die hydrierten Reviews für einen Betrachter.
// Ein Kommentar ist sichtbar, wenn er posted ist oder dem Betrachter gehört;
// Threads ohne sichtbaren Kommentar fallen komplett weg, in-progress Reviews
// sieht nur ihr Autor. Das passiert bewusst nach der SQL-Schicht: die
// Sichtbarkeit hängt vom anfragenden Nutzer ab, den die Zeilen nicht kennen.
func SelectVisibleComments(viewerID uint, reviews []*models.Review) []*models.Review {
	visible := make([]*models.Review, 0, len(reviews))
	for _, review := range reviews {
		if review.Status == models.ReviewInProgress && review.UserID != viewerID {
			continue
		}

		filtered := *review
		filtered.Threads = []models.Thread{}
		for _, thread := range review.Threads {
			keep := thread
			keep.Comments = []models.Comment{}
			for _, c := range thread.Comments {
				if c.Status == models.CommentPosted || c.UserID == viewerID {
					keep.Comments = append(keep.Comments, c)
				}
			}
			if len(keep.Comments) > 0 {
				filtered.Threads = append(filtered.Threads, keep)
			}
		}
		visible = append(visible, &filtered)
	}
	return visible
}

// ReviewService verwaltet den Review-Workflow und die Hydration aus der
// Datenbank.
type ReviewService struct {
	DB         *gorm.DB
	Reputation *ReputationService
	Logger     *zap.Logger
}

// NewReviewService erstellt eine neue Instanz des ReviewService.
func NewReviewService(db *gorm.DB, reputation *ReputationService, logger *zap.Logger) *ReviewService {
	return &ReviewService{DB: db, Reputation: reputation, Logger: logger}
}

const reviewRowsQueryTemplate = `
SELECT
    r.id               AS review_id,
    r.paper_id         AS paper_id,
    r.submission_id    AS submission_id,
    r.user_id          AS user_id,
    r.version          AS version,
    r.number           AS number,
    r.summary          AS summary,
    r.recommendation   AS recommendation,
    r.status           AS status,
    r.created_at       AS review_created_at,
    r.updated_at       AS review_updated_at,
    t.id               AS thread_id,
    t.page             AS thread_page,
    t.pin_x            AS thread_pin_x,
    t.pin_y            AS thread_pin_y,
    t.created_at       AS thread_created_at,
    c.id               AS comment_id,
    c.user_id          AS comment_user_id,
    c.thread_order     AS thread_order,
    c.status           AS comment_status,
    c.content          AS comment_content,
    %s                 AS comment_version,
    c.created_at       AS comment_created_at
FROM reviews r
LEFT JOIN review_comment_threads t ON t.review_id = r.id
LEFT JOIN review_comments c ON c.thread_id = t.id
`

// reviewRowsQuery setzt die Join-Abfrage zusammen. Die version-Spalte
// existiert nur bei initialisiertem Versions-Feature; ohne sie liefert die
// Abfrage NULL, statt auf einer fehlenden Spalte zu scheitern.
func (s *ReviewService) reviewRowsQuery() string {
	versionCol := "NULL"
	if s.DB.Migrator().HasColumn(&models.Comment{}, "version") {
		versionCol = "c.version"
	}
	return fmt.Sprintf(reviewRowsQueryTemplate, versionCol)
}

// ListForPaper liefert alle für den Betrachter sichtbaren Reviews eines
// Papers als verschachtelte Objekte.
func (s *ReviewService) ListForPaper(ctx context.Context, paperID, viewerID uint) ([]*models.Review, error) {
	var rows []ReviewRow
	err := s.DB.WithContext(ctx).
		Raw(s.reviewRowsQuery()+`
WHERE r.paper_id = ?
ORDER BY r.created_at ASC, t.created_at ASC, c.thread_order ASC, c.created_at ASC`, paperID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return SelectVisibleComments(viewerID, HydrateReviews(rows)), nil
}

// ListForSubmission liefert die sichtbaren Reviews einer Journal-Einreichung.
func (s *ReviewService) ListForSubmission(ctx context.Context, submissionID, viewerID uint) ([]*models.Review, error) {
	var rows []ReviewRow
	err := s.DB.WithContext(ctx).
		Raw(s.reviewRowsQuery()+`
WHERE r.submission_id = ?
ORDER BY r.created_at ASC, t.created_at ASC, c.thread_order ASC, c.created_at ASC`, submissionID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return SelectVisibleComments(viewerID, HydrateReviews(rows)), nil
}

// CreateReview legt ein neues in-progress Review an. Die laufende Nummer
// zählt pro Paper hoch.
func (s *ReviewService) CreateReview(ctx context.Context, review *models.Review) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paper models.Paper
		if err := tx.First(&paper, review.PaperID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.Review{}).Where("paper_id = ?", review.PaperID).Count(&count).Error; err != nil {
			return err
		}
		review.Number = int(count) + 1
		if review.Version == 0 {
			review.Version = 1
		}
		review.Status = models.ReviewInProgress
		return tx.Create(review).Error
	})
}

// CreateThread hängt einen neuen Thread an ein Review. Threads entstehen
// nur, solange das Review in-progress ist.
func (s *ReviewService) CreateThread(ctx context.Context, thread *models.Thread, userID uint) error {
	var review models.Review
	if err := s.DB.WithContext(ctx).First(&review, thread.ReviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if review.UserID != userID {
		return ErrNotAuthorized
	}
	if review.Status != models.ReviewInProgress {
		return ErrInvalidStatus
	}
	return s.DB.WithContext(ctx).Create(thread).Error
}

// SubmitReview friert ein Review ein: in-progress -> submitted, nur durch
// den Gutachter selbst. Danach ist der Inhalt unveränderlich.
func (s *ReviewService) SubmitReview(ctx context.Context, reviewID, userID uint) (*models.Review, error) {
	var review models.Review
	if err := s.DB.WithContext(ctx).First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if review.UserID != userID {
		return nil, ErrNotAuthorized
	}
	if review.Status != models.ReviewInProgress {
		return nil, ErrInvalidStatus
	}

	res := s.DB.WithContext(ctx).Model(&models.Review{}).
		Where("id = ? AND status = ?", reviewID, models.ReviewInProgress).
		Update("status", models.ReviewSubmitted)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUpdateFailure
	}
	review.Status = models.ReviewSubmitted
	return &review, nil
}

// ResolveReview setzt ein submitted Review auf accepted oder rejected.
// Das darf nur der Paper-Besitzer; eine Annahme löst die
// Reputations-Gutschrift für den Gutachter aus.
func (s *ReviewService) ResolveReview(ctx context.Context, reviewID, actorID uint, target models.ReviewStatus) (*models.Review, error) {
	if target != models.ReviewAccepted && target != models.ReviewRejected {
		return nil, ErrInvalidStatus
	}

	var review models.Review
	if err := s.DB.WithContext(ctx).First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var paper models.Paper
	if err := s.DB.WithContext(ctx).First(&paper, review.PaperID).Error; err != nil {
		return nil, err
	}
	if paper.UserID != actorID {
		return nil, ErrNotAuthorized
	}
	if review.Status != models.ReviewSubmitted {
		return nil, ErrInvalidStatus
	}

	res := s.DB.WithContext(ctx).Model(&models.Review{}).
		Where("id = ? AND status = ?", reviewID, models.ReviewSubmitted).
		Update("status", target)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUpdateFailure
	}
	review.Status = target

	if target == models.ReviewAccepted {
		if err := s.Reputation.AwardReviewAccepted(ctx, &review); err != nil {
			// Die Statusänderung steht; die Gutschrift wird geloggt und
			// kann nachgeholt werden.
			s.Logger.Error("review accepted but reputation award failed",
				zap.Uint("review_id", reviewID), zap.Error(err))
		}
	}
	return &review, nil
}
