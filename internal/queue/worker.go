package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Worker processes jobs of one type from the queue
type Worker struct {
	redis      *RedisClient
	jobType    JobType
	handler    JobHandler
	numWorkers int
	wg         sync.WaitGroup
	quit       chan struct{}
}

// NewWorker creates a new worker
func NewWorker(redis *RedisClient, jobType JobType, handler JobHandler, numWorkers int) *Worker {
	return &Worker{
		redis:      redis,
		jobType:    jobType,
		handler:    handler,
		numWorkers: numWorkers,
		quit:       make(chan struct{}),
	}
}

// Start starts the worker goroutines
func (w *Worker) Start() {
	log.Printf("starting %d workers for %s", w.numWorkers, w.jobType)
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}
}

// Stop stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
}

// process pulls and executes jobs until stopped
func (w *Worker) process(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			log.Printf("worker %d for %s stopped", workerID, w.jobType)
			return
		default:
			job, err := w.redis.Dequeue(w.jobType, 1*time.Second)
			if err != nil {
				log.Printf("error dequeueing %s job: %v", w.jobType, err)
				time.Sleep(1 * time.Second)
				continue
			}
			if job == nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			result, err := w.handler(context.Background(), *job)
			if err != nil {
				log.Printf("error processing job %s: %v", job.ID, err)
				if err := w.redis.Fail(job, err); err != nil {
					log.Printf("error marking job %s failed: %v", job.ID, err)
				}
				continue
			}

			if err := w.redis.Complete(job, result); err != nil {
				log.Printf("error marking job %s completed: %v", job.ID, err)
			}
		}
	}
}

// WorkerManager owns all workers plus the scheduler that re-enqueues
// recurring jobs.
type WorkerManager struct {
	redis     *RedisClient
	workers   map[JobType]*Worker
	scheduler *gocron.Scheduler
	mu        sync.Mutex
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(redis *RedisClient) *WorkerManager {
	return &WorkerManager{
		redis:     redis,
		workers:   make(map[JobType]*Worker),
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// RegisterWorker registers a worker pool for a job type
func (m *WorkerManager) RegisterWorker(jobType JobType, handler JobHandler, numWorkers int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workers[jobType]; exists {
		log.Printf("worker for %s already registered", jobType)
		return
	}
	m.workers[jobType] = NewWorker(m.redis, jobType, handler, numWorkers)
}

// StartAll starts every registered worker and the recurring-job scheduler
func (m *WorkerManager) StartAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, worker := range m.workers {
		worker.Start()
	}

	// Re-check recurring registrations every minute
	if _, err := m.scheduler.Every(1).Minute().Do(m.enqueueRecurringJobs); err != nil {
		log.Printf("error scheduling recurring job check: %v", err)
	}
	m.scheduler.StartAsync()
}

// StopAll stops the scheduler and every worker
func (m *WorkerManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scheduler.Stop()
	for jobType, worker := range m.workers {
		log.Printf("stopping worker for %s", jobType)
		worker.Stop()
	}
}

// Enqueue implements Enqueuer
func (m *WorkerManager) Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	return m.redis.Enqueue(jobType, payload, opts...)
}

// ScheduleRecurringJob registers a recurring job with the scheduler
func (m *WorkerManager) ScheduleRecurringJob(name string, jobType JobType, payload interface{}, interval string) error {
	return m.redis.ScheduleRecurring(name, jobType, payload, interval)
}

// enqueueRecurringJobs re-enqueues recurring jobs that are due
func (m *WorkerManager) enqueueRecurringJobs() {
	jobs, err := m.redis.GetRecurringJobs()
	if err != nil {
		log.Printf("error getting recurring jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}

		interval, err := time.ParseDuration(job.Interval)
		if err != nil {
			log.Printf("recurring job %s has invalid interval %q: %v", job.Name, job.Interval, err)
			continue
		}
		if job.LastRun != nil && time.Since(*job.LastRun) < interval {
			continue
		}

		var payload interface{}
		if job.Payload != "" {
			if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
				log.Printf("recurring job %s has invalid payload: %v", job.Name, err)
				continue
			}
		}

		if _, err := m.redis.Enqueue(job.Type, payload); err != nil {
			log.Printf("error enqueueing recurring job %s: %v", job.Name, err)
			continue
		}

		now := time.Now()
		job.LastRun = &now
		data, err := json.Marshal(job)
		if err != nil {
			log.Printf("error marshaling recurring job %s: %v", job.Name, err)
			continue
		}
		if err := m.redis.client.HSet(m.redis.ctx, recurringPrefix+"jobs", job.Name, data).Err(); err != nil {
			log.Printf("error updating recurring job %s: %v", job.Name, err)
		}
	}
}
