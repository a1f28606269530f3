package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"journalhub/config"
	"journalhub/migrations"
	"journalhub/models"
	"journalhub/providers/europepmc"
	"journalhub/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var featureTransitionsCounter prometheus.Counter

func init() {
	featureTransitionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feature_transitions_total",
			Help: "Total number of successful feature status transitions.",
		},
	)
	prometheus.MustRegister(featureTransitionsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// currentUserID liest die vom vorgelagerten Auth-Dienst validierte
// Nutzer-ID aus dem Header.
func currentUserID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.GetHeader("X-User-ID"), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// errStatus bildet die Fehlerarten des Kerns auf HTTP-Status-Codes ab.
func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrMissingFeature),
		errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidScope),
		errors.Is(err, services.ErrNotCreated),
		errors.Is(err, services.ErrFeatureDisabled),
		errors.Is(err, services.ErrResponseTooShort):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInProgress),
		errors.Is(err, services.ErrAlreadyInserted),
		errors.Is(err, services.ErrAlreadyVoted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration nur für das Basis-Schema. Feature-gebundenes Schema
	// (review_comment_versions, die version-Spalte auf review_comments)
	// entsteht ausschließlich über den Feature-Lebenszyklus.
	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(
		&models.Feature{}, &models.User{}, &models.Paper{}, &models.Field{},
		&models.UserFieldReputation{}, &models.Journal{}, &models.Submission{},
		&models.Review{}, &models.Thread{}, &models.Comment{},
		&models.Vote{}, &models.Response{},
		&models.Role{}, &models.RolePermission{}, &models.UserRole{}, &models.UserPermission{},
	); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	registry := migrations.Default(db, logging)
	featureService := services.NewFeatureService(registry, &services.GormFeatureStore{DB: db}, logging)
	reputationService := services.NewReputationService(cfg, db, logging)
	reviewService := services.NewReviewService(db, reputationService, logging)
	commentService := services.NewCommentService(db, featureService, logging)
	permissionService := services.NewPermissionService(db, logging)
	citationSource := europepmc.NewFetcher(cfg.EuropePMCURL, logging)
	worksService := services.NewWorksService(citationSource, reputationService, db, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupFeatureRoutes(router, featureService, logging)
	setupReviewRoutes(router, reviewService, logging)
	setupCommentRoutes(router, commentService, logging)
	setupVoteRoutes(router, reputationService, logging)
	setupRoleRoutes(router, permissionService, logging)
	setupWorksRoutes(router, worksService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.FieldAverageCronSchedule, func() {
		logging.Info("Running scheduled field average refresh...")
		if err := reputationService.RefreshFieldAverages(context.Background()); err != nil {
			logging.Error("Field average refresh failed", zap.Error(err))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupFeatureRoutes(router *gin.Engine, features *services.FeatureService, log *zap.Logger) {
	router.GET("/features", func(c *gin.Context) {
		list, err := features.ListFeatures(c.Request.Context())
		if err != nil {
			log.Error("Failed to list features", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	router.POST("/features", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		feature, err := features.CreateFeature(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, feature)
	})

	router.GET("/feature/:name", func(c *gin.Context) {
		feature, err := features.GetFeature(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, feature)
	})

	router.PATCH("/feature/:name", func(c *gin.Context) {
		var req struct {
			Status models.FeatureStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body (status required)"})
			return
		}
		feature, err := features.PatchStatus(c.Request.Context(), c.Param("name"), req.Status)
		if err != nil {
			log.Warn("Feature transition rejected",
				zap.String("feature", c.Param("name")), zap.Error(err))
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		featureTransitionsCounter.Inc()
		c.JSON(http.StatusOK, feature)
	})
}

func setupReviewRoutes(router *gin.Engine, reviews *services.ReviewService, log *zap.Logger) {
	router.GET("/papers/:id/reviews", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		result, err := reviews.ListForPaper(c.Request.Context(), uint(paperID), currentUserID(c))
		if err != nil {
			log.Error("Failed to list reviews", zap.Uint64("paper_id", paperID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.GET("/submissions/:id/reviews", func(c *gin.Context) {
		submissionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
			return
		}
		result, err := reviews.ListForSubmission(c.Request.Context(), uint(submissionID), currentUserID(c))
		if err != nil {
			log.Error("Failed to list submission reviews", zap.Uint64("submission_id", submissionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/papers/:id/reviews", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		var review models.Review
		if err := c.ShouldBindJSON(&review); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		review.PaperID = uint(paperID)
		review.UserID = currentUserID(c)
		if err := reviews.CreateReview(c.Request.Context(), &review); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, review)
	})

	router.POST("/reviews/:id/threads", func(c *gin.Context) {
		reviewID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
			return
		}
		var thread models.Thread
		if err := c.ShouldBindJSON(&thread); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		thread.ReviewID = uint(reviewID)
		if err := reviews.CreateThread(c.Request.Context(), &thread, currentUserID(c)); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, thread)
	})

	router.PATCH("/reviews/:id", func(c *gin.Context) {
		reviewID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
			return
		}
		var req struct {
			Status models.ReviewStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body (status required)"})
			return
		}

		var review *models.Review
		switch req.Status {
		case models.ReviewSubmitted:
			review, err = reviews.SubmitReview(c.Request.Context(), uint(reviewID), currentUserID(c))
		case models.ReviewAccepted, models.ReviewRejected:
			review, err = reviews.ResolveReview(c.Request.Context(), uint(reviewID), currentUserID(c), req.Status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrInvalidStatus.Error()})
			return
		}
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, review)
	})
}

func setupCommentRoutes(router *gin.Engine, comments *services.CommentService, log *zap.Logger) {
	router.POST("/threads/:id/comments", func(c *gin.Context) {
		threadID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
			return
		}
		var comment models.Comment
		if err := c.ShouldBindJSON(&comment); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		comment.ThreadID = uint(threadID)
		comment.UserID = currentUserID(c)
		if err := comments.InsertComment(c.Request.Context(), &comment); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, comment)
	})

	// PATCH fährt die Edit-Übergänge: post, start-edit, commit-edit, revert.
	router.PATCH("/comments/:id", func(c *gin.Context) {
		commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
			return
		}
		var req struct {
			Op      string `json:"op" binding:"required"`
			Content string `json:"content"`
			Restore bool   `json:"restore"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body (op required)"})
			return
		}

		userID := currentUserID(c)
		var comment *models.Comment
		switch req.Op {
		case "post":
			comment, err = comments.PostComment(c.Request.Context(), uint(commentID), userID)
		case "start-edit":
			comment, err = comments.StartEdit(c.Request.Context(), uint(commentID), userID)
		case "commit-edit":
			comment, err = comments.CommitEdit(c.Request.Context(), uint(commentID), userID, req.Content)
		case "revert":
			comment, err = comments.RevertEdit(c.Request.Context(), uint(commentID), userID, req.Restore)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown op"})
			return
		}
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, comment)
	})

	router.DELETE("/comments/:id", func(c *gin.Context) {
		commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
			return
		}
		if err := comments.DeleteComment(c.Request.Context(), uint(commentID), currentUserID(c)); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.GET("/comments/:id/versions", func(c *gin.Context) {
		commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
			return
		}
		versions, err := comments.ListVersions(c.Request.Context(), uint(commentID))
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, versions)
	})
}

func setupVoteRoutes(router *gin.Engine, reputation *services.ReputationService, log *zap.Logger) {
	router.POST("/papers/:id/votes", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		var req struct {
			Score    int    `json:"score"`
			Response string `json:"response"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := reputation.CastVote(c.Request.Context(), uint(paperID), currentUserID(c), req.Score, req.Response); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		score, err := reputation.PaperScore(c.Request.Context(), uint(paperID))
		if err != nil {
			log.Error("Failed to read paper score", zap.Uint64("paper_id", paperID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"score": score})
	})

	router.GET("/papers/:id/score", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		score, err := reputation.PaperScore(c.Request.Context(), uint(paperID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"paper_id": paperID, "score": score})
	})
}

func setupRoleRoutes(router *gin.Engine, permissions *services.PermissionService, log *zap.Logger) {
	router.GET("/papers/:id/roles", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		roles, err := permissions.RolesForPaper(c.Request.Context(), uint(paperID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, roles)
	})

	router.POST("/papers/:id/roles", func(c *gin.Context) {
		paperID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		var req struct {
			CorrespondingAuthorID uint   `json:"corresponding_author_id" binding:"required"`
			AuthorIDs             []uint `json:"author_ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := permissions.CreatePaperRoles(c.Request.Context(), uint(paperID), req.CorrespondingAuthorID, req.AuthorIDs); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		roles, err := permissions.RolesForPaper(c.Request.Context(), uint(paperID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusCreated, roles)
	})
}

func setupWorksRoutes(router *gin.Engine, works *services.WorksService, log *zap.Logger) {
	// Reputations-Initialisierung aus publizierten Arbeiten. Der Lauf fragt
	// die externe Zitat-Quelle ab und kann entsprechend lange dauern; pro
	// Nutzer läuft höchstens einer gleichzeitig.
	router.POST("/users/:id/reputation", func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var req struct {
			Author   string `json:"author" binding:"required"`
			FieldIDs []uint `json:"field_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body (author, field_ids required)"})
			return
		}
		deltas, err := works.InitializeReputation(c.Request.Context(), uint(userID), req.Author, req.FieldIDs)
		if err != nil {
			log.Warn("Reputation initialization failed", zap.Uint64("user_id", userID), zap.Error(err))
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deltas": deltas})
	})
}
