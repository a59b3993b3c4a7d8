package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"campusgrid/internal/logger"
	"campusgrid/internal/middlewares"
	"campusgrid/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProgressHandler struct {
	progressService *services.ProgressService
	attemptService  *services.AttemptService
}

func NewProgressHandler(progressService *services.ProgressService, attemptService *services.AttemptService) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		attemptService:  attemptService,
	}
}

func (h *ProgressHandler) GetMyProgress(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	progress, err := h.progressService.GetProgress(context.Background(), studentID)
	if err != nil {
		logger.Log.Error("Failed to get progress",
			zap.Int("student_id", studentID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch progress"})
		return
	}

	c.JSON(http.StatusOK, progress)
}

func (h *ProgressHandler) GetMyAttempts(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	attempts, err := h.attemptService.ListAttempts(context.Background(), studentID)
	if err != nil {
		logger.Log.Error("Failed to list attempts",
			zap.Int("student_id", studentID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attempt history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "count": len(attempts)})
}

func (h *ProgressHandler) GetAttempt(c *gin.Context) {
	studentID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	attemptID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid attempt ID"})
		return
	}

	attempt, err := h.attemptService.GetAttempt(context.Background(), studentID, attemptID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Attempt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attempt"})
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (h *ProgressHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	progress := router.Group("/progress", auth)
	{
		progress.GET("/me", h.GetMyProgress)
		progress.GET("/attempts", h.GetMyAttempts)
		progress.GET("/attempts/:id", h.GetAttempt)
	}
}
