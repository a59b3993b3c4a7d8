package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/models"
	"campusgrid/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const jobResultTTL = time.Hour

// ExecWorker processes queued playground code jobs from the stream and
// stores each report in the cache under the job id.
type ExecWorker struct {
	id        string
	quit      chan bool
	rdb       *redis.Client
	validator *services.CodeValidator
	sandbox   *services.Sandbox
	cache     services.Cache
}

func NewExecWorker(id string, rdb *redis.Client, validator *services.CodeValidator,
	sandbox *services.Sandbox, cache services.Cache) *ExecWorker {
	return &ExecWorker{
		id:        id,
		quit:      make(chan bool),
		rdb:       rdb,
		validator: validator,
		sandbox:   sandbox,
		cache:     cache,
	}
}

func (w *ExecWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-w.quit:
				return
			default:
				entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    CodeJobGroup,
					Consumer: w.id,
					Streams:  []string{CodeJobStream, ">"},
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
						w.processJob(ctx, msg)
					}
				}
			}
		}
	}()
}

func (w *ExecWorker) Stop() {
	logger.Log.Info("Closing worker", zap.String("worker_id", w.id))
	w.quit <- true
	close(w.quit)
}

func (w *ExecWorker) processJob(ctx context.Context, msg redis.XMessage) {
	logger.Log.Info("Processing code job",
		zap.String("worker_id", w.id),
		zap.String("job_id", msg.ID))

	if err := w.rdb.XAck(ctx, CodeJobStream, CodeJobGroup, msg.ID).Err(); err != nil {
		logger.Log.Error("Failed to acknowledge job",
			zap.String("worker_id", w.id),
			zap.Error(err))
	}

	job, err := decodeCodeJob(msg)
	if err != nil {
		logger.Log.Error("Invalid code job payload",
			zap.String("worker_id", w.id),
			zap.Any("values", msg.Values),
			zap.Error(err))
		return
	}

	report := w.execute(ctx, job)

	if err := w.cache.Set(ctx, jobResultKeyPrefix+job.JobID, report, jobResultTTL); err != nil {
		logger.Log.Error("Failed to store job result",
			zap.String("worker_id", w.id),
			zap.String("job_id", job.JobID),
			zap.Error(err))
		return
	}

	logger.Log.Info("Finished code job",
		zap.String("worker_id", w.id),
		zap.String("job_id", job.JobID),
		zap.Bool("success", report.Success),
		zap.Int("passed", report.PassedCount))
}

func (w *ExecWorker) execute(ctx context.Context, job *CodeJob) *services.ExecutionReport {
	if verdict := w.validator.Validate(job.Code, job.Language); !verdict.Valid {
		if verdict.SecurityViolation {
			logger.Log.Warn("Queued code rejected by validator",
				zap.String("job_id", job.JobID),
				zap.String("reason", verdict.Error),
				zap.Bool("security_violation", true))
		}
		return &services.ExecutionReport{
			Language:   job.Language,
			TotalCount: len(job.TestCases),
			Error:      verdict.Error,
			Timestamp:  time.Now(),
		}
	}

	report, err := w.sandbox.Execute(ctx, job.Code, job.TestCases, job.Language)
	if err != nil {
		logger.Log.Error("Queued code execution failed",
			zap.String("job_id", job.JobID),
			zap.Error(err))
	}
	return report
}

func decodeCodeJob(msg redis.XMessage) (*CodeJob, error) {
	jobID, _ := msg.Values["job_id"].(string)
	code, _ := msg.Values["code"].(string)
	language, _ := msg.Values["language"].(string)
	rawCases, _ := msg.Values["test_cases"].(string)

	if jobID == "" || code == "" || language == "" {
		return nil, fmt.Errorf("missing job fields")
	}

	var cases models.TestCaseList
	if err := json.Unmarshal([]byte(rawCases), &cases); err != nil {
		return nil, fmt.Errorf("bad test cases: %w", err)
	}

	return &CodeJob{JobID: jobID, Code: code, Language: language, TestCases: cases}, nil
}

// Pool runs the execution workers plus one progress-retry worker against
// their consumer groups.
type Pool struct {
	workers        []*ExecWorker
	progressWorker *ProgressWorker
	numWorkers     int
	rdb            *redis.Client
	validator      *services.CodeValidator
	sandbox        *services.Sandbox
	cache          services.Cache
}

func NewPool(numWorkers int, rdb *redis.Client, validator *services.CodeValidator,
	sandbox *services.Sandbox, cache services.Cache, progressWorker *ProgressWorker) *Pool {
	return &Pool{
		workers:        make([]*ExecWorker, numWorkers),
		progressWorker: progressWorker,
		numWorkers:     numWorkers,
		rdb:            rdb,
		validator:      validator,
		sandbox:        sandbox,
		cache:          cache,
	}
}

func (p *Pool) Start(ctx context.Context) error {
	for _, stream := range []struct{ name, group string }{
		{CodeJobStream, CodeJobGroup},
		{ProgressRetryStream, ProgressRetryGroup},
	} {
		_, err := p.rdb.XGroupCreateMkStream(ctx, stream.name, stream.group, "$").Result()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group %s: %w", stream.group, err)
		}
	}

	for i := 0; i < p.numWorkers; i++ {
		worker := NewExecWorker(
			fmt.Sprintf("ExecWorker-%d", i+1),
			p.rdb, p.validator, p.sandbox, p.cache,
		)
		worker.Start(ctx)
		p.workers[i] = worker

		logger.Log.Info("Starting exec worker", zap.String("worker_id", worker.id))
	}

	p.progressWorker.Start(ctx)

	logger.Log.Info("Worker pool started", zap.Int("num_workers", p.numWorkers))
	return nil
}

func (p *Pool) Stop() {
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.progressWorker.Stop()
}
