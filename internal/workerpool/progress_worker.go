package workerpool

import (
	"context"
	"strconv"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/repositories"
	"campusgrid/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProgressWorker retries progress updates that failed during finish, so
// an attempt's completion never depends on reward bookkeeping.
type ProgressWorker struct {
	id       string
	quit     chan bool
	rdb      *redis.Client
	attempts repositories.AttemptRepository
	progress *services.ProgressService
}

func NewProgressWorker(id string, rdb *redis.Client, attempts repositories.AttemptRepository,
	progress *services.ProgressService) *ProgressWorker {
	return &ProgressWorker{
		id:       id,
		quit:     make(chan bool),
		rdb:      rdb,
		attempts: attempts,
		progress: progress,
	}
}

func (w *ProgressWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-w.quit:
				return
			default:
				entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    ProgressRetryGroup,
					Consumer: w.id,
					Streams:  []string{ProgressRetryStream, ">"},
					Count:    1,
					Block:    5 * time.Second,
				}).Result()

				if err != nil {
					if err != redis.Nil && ctx.Err() == nil {
						logger.Log.Error("Redis operation failed",
							zap.String("worker_id", w.id),
							zap.Error(err))
					}
					continue
				}

				for _, stream := range entries {
					for _, msg := range stream.Messages {
						w.processRetry(ctx, msg)
					}
				}
			}
		}
	}()
}

func (w *ProgressWorker) Stop() {
	logger.Log.Info("Closing worker", zap.String("worker_id", w.id))
	w.quit <- true
	close(w.quit)
}

func (w *ProgressWorker) processRetry(ctx context.Context, msg redis.XMessage) {
	studentID, ok1 := intValue(msg.Values["student_id"])
	attemptID, ok2 := intValue(msg.Values["attempt_id"])
	if !ok1 || !ok2 {
		logger.Log.Error("Invalid progress retry payload",
			zap.String("worker_id", w.id),
			zap.Any("values", msg.Values))
		_ = w.rdb.XAck(ctx, ProgressRetryStream, ProgressRetryGroup, msg.ID).Err()
		return
	}

	attempt, err := w.attempts.GetByID(ctx, attemptID)
	if err != nil {
		logger.Log.Error("Failed to load attempt for progress retry",
			zap.String("worker_id", w.id),
			zap.Int("attempt_id", attemptID),
			zap.Error(err))
		return
	}

	// UpdateProgress is deterministic over the history, so re-running a
	// partially applied update is safe.
	if _, err := w.progress.UpdateProgress(ctx, studentID, attempt); err != nil {
		logger.Log.Error("Progress retry failed, leaving message pending",
			zap.String("worker_id", w.id),
			zap.Int("attempt_id", attemptID),
			zap.Error(err))
		return
	}

	if err := w.rdb.XAck(ctx, ProgressRetryStream, ProgressRetryGroup, msg.ID).Err(); err != nil {
		logger.Log.Error("Failed to acknowledge progress retry",
			zap.String("worker_id", w.id),
			zap.Error(err))
	}

	logger.Log.Info("Progress retry applied",
		zap.String("worker_id", w.id),
		zap.Int("student_id", studentID),
		zap.Int("attempt_id", attemptID))
}

func intValue(v interface{}) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
