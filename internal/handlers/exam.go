package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/middlewares"
	"campusgrid/internal/models"
	"campusgrid/internal/repositories"
	"campusgrid/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExamHandler struct {
	attemptService *services.AttemptService
	questionRepo   repositories.QuestionRepository
}

func NewExamHandler(attemptService *services.AttemptService, questionRepo repositories.QuestionRepository) *ExamHandler {
	return &ExamHandler{
		attemptService: attemptService,
		questionRepo:   questionRepo,
	}
}

// GetGeneralExamSubjects lists active subjects and the level ladder.
func (h *ExamHandler) GetGeneralExamSubjects(c *gin.Context) {
	subjects, err := h.questionRepo.ListSubjects(context.Background())
	if err != nil {
		logger.Log.Error("Failed to list subjects", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subjects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subjects": subjects,
		"levels":   models.Levels,
	})
}

// GetAvailableExams lists recruitment-drive exams inside their window.
func (h *ExamHandler) GetAvailableExams(c *gin.Context) {
	exams, err := h.questionRepo.ListActiveExams(context.Background(), time.Now())
	if err != nil {
		logger.Log.Error("Failed to list exams", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch exams"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"exams": exams, "count": len(exams)})
}

// GetExamDetail returns one drive-exam definition. Questions are only
// handed out, sanitized, when an attempt starts.
func (h *ExamHandler) GetExamDetail(c *gin.Context) {
	examID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	exam, err := h.questionRepo.GetExam(context.Background(), examID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"exam": exam, "available": exam.AvailableAt(time.Now())})
}

type startGeneralRequest struct {
	SubjectID     int    `json:"subject_id" binding:"required"`
	Level         string `json:"level" binding:"required"`
	QuestionCount int    `json:"question_count"`
}

func (h *ExamHandler) StartGeneralExam(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req startGeneralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.attemptService.StartGeneralExam(context.Background(), studentID, req.SubjectID, req.Level, req.QuestionCount)
	if err != nil {
		h.respondStartError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ExamHandler) StartDriveExam(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	examID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	result, err := h.attemptService.StartDriveExam(context.Background(), studentID, examID)
	if err != nil {
		h.respondStartError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ExamHandler) respondStartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "You already have an in-progress attempt for this exam"})
	case errors.Is(err, services.ErrStartInProgress):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Exam start already in progress. Please wait."})
	case errors.Is(err, services.ErrExamUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Exam is not available at this time"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Log.Error("Failed to start exam", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start exam"})
	}
}

type submitAnswerRequest struct {
	AttemptID  int    `json:"attempt_id" binding:"required"`
	QuestionID int    `json:"question_id" binding:"required"`
	Answer     string `json:"answer"`
}

func (h *ExamHandler) SubmitAnswer(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.attemptService.SubmitAnswer(context.Background(), studentID, req.AttemptID, req.QuestionID, req.Answer)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":              verr.Message,
				"security_violation": verr.SecurityViolation,
			})
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrAttemptClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam attempt not found or already completed"})
		case errors.Is(err, services.ErrUnsupportedLanguage),
			errors.Is(err, services.ErrNoTestCases),
			errors.Is(err, services.ErrTooManyTestCases):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Code execution failed", "detail": err.Error()})
		default:
			logger.Log.Error("Failed to submit answer",
				zap.Int("attempt_id", req.AttemptID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit answer"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type violationRequest struct {
	AttemptID     int    `json:"attempt_id" binding:"required"`
	ViolationType string `json:"violation_type" binding:"required"`
}

func (h *ExamHandler) ReportViolation(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req violationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.attemptService.ReportViolation(context.Background(), studentID, req.AttemptID, req.ViolationType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrAttemptClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam attempt not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type finishRequest struct {
	AttemptID     int  `json:"attempt_id" binding:"required"`
	AutoSubmitted bool `json:"auto_submitted"`
}

func (h *ExamHandler) FinishExam(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.attemptService.FinishAttempt(context.Background(), studentID, req.AttemptID, req.AutoSubmitted)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrAttemptClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam attempt not found or already completed"})
		default:
			logger.Log.Error("Failed to finish exam",
				zap.Int("attempt_id", req.AttemptID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to finish exam"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ExamHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	exams := router.Group("/exams", auth)
	{
		exams.GET("", h.GetAvailableExams)
		exams.GET("/general/subjects", h.GetGeneralExamSubjects)
		exams.GET("/:id", h.GetExamDetail)
		exams.POST("/general/start", h.StartGeneralExam)
		exams.POST("/:id/start", h.StartDriveExam)
		exams.POST("/submit", h.SubmitAnswer)
		exams.POST("/violation", h.ReportViolation)
		exams.POST("/finish", h.FinishExam)
	}
}
