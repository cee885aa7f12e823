package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Redis key prefixes
const (
	queuePrefix      = "queue:"
	processingPrefix = "processing:"
	delayedPrefix    = "delayed:"
	recurringPrefix  = "recurring:"
	failedPrefix     = "failed:"
	completedPrefix  = "completed:"
)

// RedisClient is the Redis-backed job queue. Jobs live as rows in the
// database for auditability; Redis lists carry the ids between producers
// and workers, with a sorted set holding delayed retries.
type RedisClient struct {
	client *redis.Client
	db     *gorm.DB
	ctx    context.Context
}

// NewRedisClient creates a new Redis queue client
func NewRedisClient(client *redis.Client, db *gorm.DB) *RedisClient {
	r := &RedisClient{
		client: client,
		db:     db,
		ctx:    context.Background(),
	}

	go r.promoteDelayedJobs()

	return r
}

// Close closes the Redis client
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Enqueue persists a job and pushes its id onto the queue for its type
func (r *RedisClient) Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	options := &EnqueueOptions{maxRetries: 3}
	for _, opt := range opts {
		opt(options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: options.maxRetries,
	}

	if err := r.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	if options.delay > 0 {
		return job.ID.String(), r.pushDelayed(job, time.Now().Add(options.delay))
	}
	return job.ID.String(), r.pushImmediate(job)
}

// pushImmediate puts a job id on the ready list for its type
func (r *RedisClient) pushImmediate(job Job) error {
	queueName := queuePrefix + string(job.Type)
	if err := r.client.LPush(r.ctx, queueName, job.ID.String()).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}
	return nil
}

// pushDelayed parks a job id in the delayed set until runAt
func (r *RedisClient) pushDelayed(job Job, runAt time.Time) error {
	delayedQueue := delayedPrefix + string(job.Type)
	err := r.client.ZAdd(r.ctx, delayedQueue, &redis.Z{
		Score:  float64(runAt.Unix()),
		Member: job.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push job to delayed queue: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job of the given type
func (r *RedisClient) Dequeue(jobType JobType, timeout time.Duration) (*Job, error) {
	queueName := queuePrefix + string(jobType)

	result, err := r.client.BRPop(r.ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // queue empty
		}
		return nil, fmt.Errorf("error popping from queue %s: %w", jobType, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP result for queue %s", jobType)
	}

	jobID, err := uuid.Parse(result[1])
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", result[1], err)
	}

	var job Job
	if err := r.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if err := r.db.Model(&job).Updates(map[string]interface{}{
		"status":     JobStatusProcessing,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}

	processingKey := processingPrefix + string(jobType)
	if err := r.client.HSet(r.ctx, processingKey, job.ID.String(), time.Now().Format(time.RFC3339)).Err(); err != nil {
		log.Printf("warning: failed to track processing job %s: %v", job.ID, err)
	}

	return &job, nil
}

// Complete marks a job as completed and records its result
func (r *RedisClient) Complete(job *Job, result interface{}) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
	}

	if err := r.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":     JobStatusCompleted,
		"result":     resultJSON,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	processingKey := processingPrefix + string(job.Type)
	if err := r.client.HDel(r.ctx, processingKey, job.ID.String()).Err(); err != nil {
		log.Printf("warning: failed to untrack job %s: %v", job.ID, err)
	}

	completedKey := completedPrefix + string(job.Type)
	if err := r.client.HSet(r.ctx, completedKey, job.ID.String(), time.Now().Format(time.RFC3339)).Err(); err == nil {
		if err := r.client.Expire(r.ctx, completedKey, 24*time.Hour).Err(); err != nil {
			log.Printf("warning: failed to expire completed set: %v", err)
		}
	}

	return nil
}

// Fail records a job failure, requeueing with exponential backoff while
// the retry budget lasts.
func (r *RedisClient) Fail(job *Job, jobErr error) error {
	processingKey := processingPrefix + string(job.Type)
	if err := r.client.HDel(r.ctx, processingKey, job.ID.String()).Err(); err != nil {
		log.Printf("warning: failed to untrack job %s: %v", job.ID, err)
	}

	retryCount := job.RetryCount + 1
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	if retryCount < job.MaxRetries {
		nextRetry := time.Now().Add(calculateBackoff(retryCount))

		if err := r.db.Model(job).Updates(map[string]interface{}{
			"retry_count": retryCount,
			"next_retry":  nextRetry,
			"error":       errMsg,
			"status":      JobStatusPending,
			"updated_at":  time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to update job for retry: %w", err)
		}

		job.RetryCount = retryCount
		return r.pushDelayed(*job, nextRetry)
	}

	if err := r.db.Model(job).Updates(map[string]interface{}{
		"status":      JobStatusFailed,
		"retry_count": retryCount,
		"error":       errMsg,
		"updated_at":  time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	failedKey := failedPrefix + string(job.Type)
	if err := r.client.HSet(r.ctx, failedKey, job.ID.String(), time.Now().Format(time.RFC3339)).Err(); err != nil {
		log.Printf("warning: failed to track failed job %s: %v", job.ID, err)
	}

	return nil
}

// promoteDelayedJobs moves delayed jobs whose time has come onto the ready
// lists. Runs for the life of the process.
func (r *RedisClient) promoteDelayedJobs() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	jobTypes := []JobType{JobTypeReferralNotification, JobTypePendingCashSweep}

	for range ticker.C {
		for _, jobType := range jobTypes {
			r.promoteReady(jobType)
		}
	}
}

// promoteReady moves due members of one delayed set to its ready list
func (r *RedisClient) promoteReady(jobType JobType) {
	delayedQueue := delayedPrefix + string(jobType)
	queueName := queuePrefix + string(jobType)

	ids, err := r.client.ZRangeByScore(r.ctx, delayedQueue, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		log.Printf("error reading delayed jobs for %s: %v", jobType, err)
		return
	}

	for _, id := range ids {
		if err := r.client.LPush(r.ctx, queueName, id).Err(); err != nil {
			log.Printf("error promoting job %s: %v", id, err)
			continue
		}
		if err := r.client.ZRem(r.ctx, delayedQueue, id).Err(); err != nil {
			log.Printf("error removing promoted job %s: %v", id, err)
		}
	}
}

// ScheduleRecurring registers a named job the scheduler re-enqueues on an interval
func (r *RedisClient) ScheduleRecurring(name string, jobType JobType, payload interface{}, interval string) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal recurring job payload: %w", err)
	}

	job := RecurringJob{
		Name:     name,
		Type:     jobType,
		Payload:  string(payloadBytes),
		Interval: interval,
		Enabled:  true,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal recurring job: %w", err)
	}

	if err := r.client.HSet(r.ctx, recurringPrefix+"jobs", name, data).Err(); err != nil {
		return fmt.Errorf("failed to register recurring job: %w", err)
	}
	return nil
}

// RemoveRecurring deletes a recurring job registration
func (r *RedisClient) RemoveRecurring(name string) error {
	if err := r.client.HDel(r.ctx, recurringPrefix+"jobs", name).Err(); err != nil {
		return fmt.Errorf("failed to remove recurring job: %w", err)
	}
	return nil
}

// GetRecurringJobs lists all recurring job registrations
func (r *RedisClient) GetRecurringJobs() ([]RecurringJob, error) {
	result, err := r.client.HGetAll(r.ctx, recurringPrefix+"jobs").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring jobs: %w", err)
	}

	jobs := make([]RecurringJob, 0, len(result))
	for _, data := range result {
		var job RecurringJob
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			log.Printf("error unmarshaling recurring job: %v", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetQueueStats reports queue depths for one job type
func (r *RedisClient) GetQueueStats(jobType JobType) (*QueueStats, error) {
	stats := &QueueStats{Queue: string(jobType)}

	waiting, err := r.client.LLen(r.ctx, queuePrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting count: %w", err)
	}
	stats.Waiting = int(waiting)

	delayed, err := r.client.ZCard(r.ctx, delayedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get delayed count: %w", err)
	}
	stats.Delayed = int(delayed)

	processing, err := r.client.HLen(r.ctx, processingPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get processing count: %w", err)
	}
	stats.Processing = int(processing)

	failed, err := r.client.HLen(r.ctx, failedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get failed count: %w", err)
	}
	stats.Failed = int(failed)

	completed, err := r.client.HLen(r.ctx, completedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get completed count: %w", err)
	}
	stats.Completed = int(completed)

	return stats, nil
}
