package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/mindmentor/internal/ai"
	"github.com/example/mindmentor/internal/analytics"
	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/internal/quiz"
	"github.com/example/mindmentor/internal/scheduler"
	"github.com/example/mindmentor/pkg/models"
)

// Generator is the generation client surface used by the API
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Response, error)
	Invalidate(ctx context.Context, key string) error
	Stats() ai.SessionStats
}

// CacheStats reports the backing store's telemetry
type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// AttemptSaver persists attempts posted through the API
type AttemptSaver interface {
	Create(ctx context.Context, a *models.Attempt) error
}

// Deps wires the handler. Quiz, Analytics and Attempts may be nil.
type Deps struct {
	Generator Generator
	Cache     CacheStats
	Mastery   *mastery.Model
	Plans     *scheduler.Service
	Quiz      *quiz.Service
	Analytics *analytics.Service
	Attempts  AttemptSaver
	Logger    *slog.Logger
}

// Handler serves the HTTP API
type Handler struct {
	deps Deps
	now  func() time.Time
}

// NewHandler creates a handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{deps: deps, now: time.Now}
}

// Router builds the gin engine with every route registered
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.deps.Logger))

	r.GET("/health", h.Health)
	v1 := r.Group("/v1")
	{
		v1.POST("/generate", h.Generate)
		v1.GET("/cache/stats", h.CacheStats)
		v1.DELETE("/cache/:key", h.InvalidateCache)

		v1.GET("/mastery/:user/:topic", h.GetMastery)
		v1.POST("/mastery/:user/:topic/attempts", h.PostAttempt)

		v1.POST("/schedule", h.GenerateSchedule)
		v1.GET("/schedule/:user", h.GetSchedule)
		v1.POST("/schedule/:user/complete", h.CompleteItem)

		v1.POST("/reviews", h.PostReview)

		if h.deps.Quiz != nil {
			v1.POST("/quizzes", h.BuildQuiz)
			v1.POST("/quizzes/submit", h.SubmitQuiz)
		}
		if h.deps.Analytics != nil {
			v1.GET("/analytics/:user", h.GetAnalytics)
		}
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": h.now().UTC().Format(time.RFC3339)})
}

type generateRequest struct {
	Task         ai.TaskType     `json:"task"`
	TemplateID   string          `json:"template_id" binding:"required"`
	Params       map[string]any  `json:"params"`
	Tier         models.CostTier `json:"tier"`
	ForceRefresh bool            `json:"force_refresh"`
}

func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.deps.Generator.Generate(c.Request.Context(), ai.Request{
		Task:         req.Task,
		TemplateID:   req.TemplateID,
		Params:       req.Params,
		Tier:         req.Tier,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CacheStats(c *gin.Context) {
	out := gin.H{"session": h.deps.Generator.Stats()}
	if h.deps.Cache != nil {
		st, err := h.deps.Cache.Stats(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		out["store"] = st
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) InvalidateCache(c *gin.Context) {
	if err := h.deps.Generator.Invalidate(c.Request.Context(), c.Param("key")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetMastery(c *gin.Context) {
	userID, topicID, ok := userTopic(c)
	if !ok {
		return
	}
	rec, err := h.deps.Mastery.Find(c.Request.Context(), userID, topicID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rec == nil {
		abortWithError(c, fmt.Errorf("%w: no mastery for user %d topic %d", models.ErrNotFound, userID, topicID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"mastery": rec, "difficulty": mastery.DifficultyOf(rec)})
}

// GetAnalytics returns the learner's progress report
func (h *Handler) GetAnalytics(c *gin.Context) {
	userID, ok := int64Param(c, "user")
	if !ok {
		return
	}
	rep, err := h.deps.Analytics.Report(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type attemptRequest struct {
	Kind             string   `json:"kind"`
	Total            int      `json:"total"`
	Correct          int      `json:"correct"`
	ResponseSeconds  float64  `json:"response_seconds"`
	WeakConcepts     []string `json:"weak_concepts"`
	MasteredConcepts []string `json:"mastered_concepts"`
}

func (h *Handler) PostAttempt(c *gin.Context) {
	userID, topicID, ok := userTopic(c)
	if !ok {
		return
	}
	var req attemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := models.Attempt{
		UserID:           userID,
		TopicID:          topicID,
		Kind:             req.Kind,
		Total:            req.Total,
		Correct:          req.Correct,
		ResponseSeconds:  req.ResponseSeconds,
		WeakConcepts:     req.WeakConcepts,
		MasteredConcepts: req.MasteredConcepts,
		TakenAt:          h.now(),
	}
	ctx := c.Request.Context()
	rec, err := h.deps.Mastery.Update(ctx, a)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.deps.Attempts != nil {
		if err := h.deps.Attempts.Create(ctx, &a); err != nil {
			h.deps.Logger.Warn("saving attempt failed", "user_id", userID, "topic_id", topicID, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"mastery": rec, "difficulty": mastery.DifficultyOf(rec)})
}

type scheduleRequest struct {
	UserID       int64    `json:"user_id" binding:"required"`
	StartDate    string   `json:"start_date"`
	NumDays      int      `json:"num_days"`
	DailyMinutes int      `json:"daily_minutes"`
	Subjects     []string `json:"subjects"`
}

func (h *Handler) GenerateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, ok := h.dateOr(c, req.StartDate, models.Day(h.now()))
	if !ok {
		return
	}
	days, err := h.deps.Plans.Regenerate(c.Request.Context(), scheduler.Request{
		UserID:       req.UserID,
		StartDate:    start,
		NumDays:      req.NumDays,
		DailyMinutes: req.DailyMinutes,
		Subjects:     req.Subjects,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (h *Handler) GetSchedule(c *gin.Context) {
	userID, ok := int64Param(c, "user")
	if !ok {
		return
	}
	today := models.Day(h.now())
	from, ok := h.dateOr(c, c.Query("from"), today)
	if !ok {
		return
	}
	to, ok := h.dateOr(c, c.Query("to"), from.AddDate(0, 0, 6))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	days, err := h.deps.Plans.Days(ctx, userID, from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	stats, err := h.deps.Plans.Stats(ctx, userID, from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "stats": stats})
}

type completeRequest struct {
	Date    string `json:"date"`
	TopicID int64  `json:"topic_id" binding:"required"`
}

func (h *Handler) CompleteItem(c *gin.Context) {
	userID, ok := int64Param(c, "user")
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, ok := h.dateOr(c, req.Date, models.Day(h.now()))
	if !ok {
		return
	}
	item, err := h.deps.Plans.MarkCompleted(c.Request.Context(), userID, date, req.TopicID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type reviewRequest struct {
	UserID         int64  `json:"user_id" binding:"required"`
	TopicID        int64  `json:"topic_id" binding:"required"`
	Quality        *int   `json:"quality" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) PostReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}
	outcome, err := h.deps.Plans.RecordReviewQuality(c.Request.Context(), req.UserID, req.TopicID, *req.Quality, key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) BuildQuiz(c *gin.Context) {
	var req quiz.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.deps.Quiz.Build(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type submitRequest struct {
	Quiz           *quiz.Quiz     `json:"quiz" binding:"required"`
	Answers        map[int]string `json:"answers"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
}

func (h *Handler) SubmitQuiz(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	elapsed := time.Duration(req.ElapsedSeconds * float64(time.Second))
	res, err := h.deps.Quiz.Submit(c.Request.Context(), req.Quiz, req.Answers, elapsed)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		abortWithError(c, fmt.Errorf("%w: invalid %s %q", models.ErrValidation, name, c.Param(name)))
		return 0, false
	}
	return v, true
}

func userTopic(c *gin.Context) (int64, int64, bool) {
	userID, ok := int64Param(c, "user")
	if !ok {
		return 0, 0, false
	}
	topicID, ok := int64Param(c, "topic")
	if !ok {
		return 0, 0, false
	}
	return userID, topicID, true
}

// dateOr parses a YYYY-MM-DD value, returning def when it is empty
func (h *Handler) dateOr(c *gin.Context, value string, def time.Time) (time.Time, bool) {
	if value == "" {
		return def, true
	}
	d, err := models.ParseDay(value)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid date %q", models.ErrValidation, value))
		return time.Time{}, false
	}
	return d, true
}
