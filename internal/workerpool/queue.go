package workerpool

import (
	"context"
	"encoding/json"
	"fmt"

	"campusgrid/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	CodeJobStream       = "code_jobs"
	CodeJobGroup        = "executors"
	ProgressRetryStream = "progress_retries"
	ProgressRetryGroup  = "progress_updaters"

	jobResultKeyPrefix = "job_result:"
)

// CodeJob is one queued playground execution.
type CodeJob struct {
	JobID     string              `json:"job_id"`
	Code      string              `json:"code"`
	Language  string              `json:"language"`
	TestCases models.TestCaseList `json:"test_cases"`
}

// JobQueue pushes work onto the redis streams the pool consumes.
type JobQueue struct {
	rdb *redis.Client
}

func NewJobQueue(rdb *redis.Client) *JobQueue {
	return &JobQueue{rdb: rdb}
}

// EnqueueCodeJob queues an execution and returns the job id the caller
// can poll for the result.
func (q *JobQueue) EnqueueCodeJob(ctx context.Context, code, language string, testCases models.TestCaseList) (string, error) {
	jobID := uuid.NewString()

	cases, err := json.Marshal(testCases)
	if err != nil {
		return "", fmt.Errorf("failed to encode test cases: %w", err)
	}

	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: CodeJobStream,
		ID:     "*",
		Values: map[string]interface{}{
			"job_id":     jobID,
			"code":       code,
			"language":   language,
			"test_cases": string(cases),
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("failed to queue code job: %w", err)
	}

	return jobID, nil
}

// Enqueue schedules a progress-update retry. Implements
// services.ProgressRetryQueue.
func (q *JobQueue) Enqueue(ctx context.Context, studentID, attemptID int) error {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ProgressRetryStream,
		ID:     "*",
		Values: map[string]interface{}{
			"student_id": studentID,
			"attempt_id": attemptID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to queue progress retry: %w", err)
	}
	return nil
}

// Stats reports queue depth.
func (q *JobQueue) Stats(ctx context.Context) (map[string]int64, error) {
	waiting, err := q.rdb.XLen(ctx, CodeJobStream).Result()
	if err != nil {
		return nil, err
	}

	pending := int64(0)
	if info, err := q.rdb.XPending(ctx, CodeJobStream, CodeJobGroup).Result(); err == nil {
		pending = info.Count
	}

	return map[string]int64{
		"waiting": waiting,
		"pending": pending,
	}, nil
}
