package handlers

import (
	"context"
	"errors"
	"net/http"

	"campusgrid/internal/logger"
	"campusgrid/internal/models"
	"campusgrid/internal/services"
	"campusgrid/internal/workerpool"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlaygroundHandler exposes Validate and Execute as standalone
// operations, synchronously or through the job queue.
type PlaygroundHandler struct {
	validator *services.CodeValidator
	sandbox   *services.Sandbox
	queue     *workerpool.JobQueue
	cache     services.Cache
}

func NewPlaygroundHandler(validator *services.CodeValidator, sandbox *services.Sandbox,
	queue *workerpool.JobQueue, cache services.Cache) *PlaygroundHandler {
	return &PlaygroundHandler{
		validator: validator,
		sandbox:   sandbox,
		queue:     queue,
		cache:     cache,
	}
}

type executeRequest struct {
	Code      string              `json:"code" binding:"required"`
	Language  string              `json:"language" binding:"required"`
	TestCases models.TestCaseList `json:"test_cases" binding:"required"`
}

func (h *PlaygroundHandler) Validate(c *gin.Context) {
	var req struct {
		Code     string `json:"code" binding:"required"`
		Language string `json:"language" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict := h.validator.Validate(req.Code, req.Language)
	if verdict.SecurityViolation {
		logger.Log.Warn("Playground code rejected by validator",
			zap.String("reason", verdict.Error),
			zap.Bool("security_violation", true))
	}

	c.JSON(http.StatusOK, verdict)
}

func (h *PlaygroundHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if verdict := h.validator.Validate(req.Code, req.Language); !verdict.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              verdict.Error,
			"security_violation": verdict.SecurityViolation,
		})
		return
	}

	report, err := h.sandbox.Execute(c.Request.Context(), req.Code, req.TestCases, req.Language)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedLanguage),
			errors.Is(err, services.ErrNoTestCases),
			errors.Is(err, services.ErrTooManyTestCases):
			c.JSON(http.StatusBadRequest, report)
		default:
			logger.Log.Error("Playground execution failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Code execution failed"})
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

// QueueExecution offloads a run to the worker pool and returns a job id.
func (h *PlaygroundHandler) QueueExecution(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.queue.EnqueueCodeJob(context.Background(), req.Code, req.Language, req.TestCases)
	if err != nil {
		logger.Log.Error("Failed to queue execution", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue execution"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (h *PlaygroundHandler) GetJobResult(c *gin.Context) {
	jobID := c.Param("id")

	var report services.ExecutionReport
	if err := h.cache.Get(context.Background(), "job_result:"+jobID, &report); err != nil {
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "state": "pending"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "state": "done", "result": report})
}

func (h *PlaygroundHandler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(context.Background())
	if err != nil {
		logger.Log.Error("Failed to read queue stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *PlaygroundHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	playground := router.Group("/playground", auth)
	{
		playground.POST("/validate", h.Validate)
		playground.POST("/execute", h.Execute)
		playground.POST("/execute/queue", h.QueueExecution)
		playground.GET("/jobs/:id", h.GetJobResult)
		playground.GET("/queue/stats", h.QueueStats)
	}
}
