package queue

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	// Job types owned by the referral program
	JobTypeReferralNotification JobType = "referral_notification"
	JobTypePendingCashSweep     JobType = "pending_cash_sweep"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job. The database row is the audit record;
// Redis carries the job id between producer and worker.
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	MaxRetries int             `json:"max_retries" gorm:"default:3"`
	NextRetry  *time.Time      `json:"next_retry,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BeforeCreate assigns a UUID when none was set
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) (interface{}, error)

// RecurringJob describes a job the scheduler re-enqueues on an interval
type RecurringJob struct {
	Name     string     `json:"name"`
	Type     JobType    `json:"type"`
	Payload  string     `json:"payload"`
	Interval string     `json:"interval"` // gocron duration string, e.g. "5m"
	Enabled  bool       `json:"enabled"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// QueueStats reports the state of one queue
type QueueStats struct {
	Queue      string `json:"queue"`
	Waiting    int    `json:"waiting"`
	Delayed    int    `json:"delayed"`
	Processing int    `json:"processing"`
	Failed     int    `json:"failed"`
	Completed  int    `json:"completed"`
}

// Enqueuer is the producer-side interface services depend on
type Enqueuer interface {
	Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error)
}

// EnqueueOptions controls how a job is enqueued
type EnqueueOptions struct {
	delay      time.Duration
	maxRetries int
}

// EnqueueOption mutates EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithDelay defers a job's first execution
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.delay = delay }
}

// WithMaxRetries sets the retry budget for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(o *EnqueueOptions) { o.maxRetries = maxRetries }
}

// calculateBackoff returns the delay before a retry attempt, growing
// exponentially and capped at five minutes.
func calculateBackoff(retryCount int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}
