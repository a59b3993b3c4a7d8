package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StartLock is a time-boxed distributed lock preventing duplicate
// concurrent starts of the same exam across instances. The TTL releases
// the key on its own if the holder dies mid-start.
type StartLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStartLock(client *redis.Client, ttl time.Duration) *StartLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &StartLock{client: client, ttl: ttl}
}

// AcquireExam guards a drive-exam start per (student, exam).
func (l *StartLock) AcquireExam(ctx context.Context, studentID, examID int) (func(), error) {
	return l.acquire(ctx, fmt.Sprintf("exam_start:%d:%d", studentID, examID))
}

// AcquireLevel guards a general-exam start per (student, subject, level).
func (l *StartLock) AcquireLevel(ctx context.Context, studentID, subjectID int, level string) (func(), error) {
	return l.acquire(ctx, fmt.Sprintf("exam_start:%d:%d:%s", studentID, subjectID, level))
}

func (l *StartLock) acquire(ctx context.Context, key string) (func(), error) {
	ok, err := l.client.SetNX(ctx, key, time.Now().UnixMilli(), l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire start lock: %w", err)
	}
	if !ok {
		return nil, ErrStartInProgress
	}
	release := func() {
		_ = l.client.Del(context.Background(), key).Err()
	}
	return release, nil
}
