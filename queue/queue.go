package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeychilson/pdfworks/cache"
	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/logger"
	"github.com/joeychilson/pdfworks/retry"
)

// Handler performs a task and returns its result for the cache. Returning
// retry.Permanent stops further attempts.
type Handler func(ctx context.Context, task Task) (*cache.Entry, error)

type queuedTask struct {
	id   string
	task Task
}

// Queue dispatches submitted tasks to a pool of workers.
type Queue struct {
	store   Store
	results cache.Cache
	handler Handler
	retrier *retry.Retrier
	logger  logger.Logger
	jobTTL  time.Duration
	timeout func(operation string) time.Duration

	tasks  chan queuedTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Options configures a Queue.
type Options struct {
	Config  config.QueueConfig
	Store   Store
	Results cache.Cache
	Handler Handler
	Logger  logger.Logger
	// Timeout bounds a single attempt of the named operation. Nil means no
	// per-attempt timeout.
	Timeout func(operation string) time.Duration
}

// New starts the workers. Call Close to stop them.
func New(opts Options) *Queue {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(opts.Config.GetJobTTL())
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:   opts.Store,
		results: opts.Results,
		handler: opts.Handler,
		retrier: retry.New(nil, opts.Config.Retry),
		logger:  opts.Logger,
		jobTTL:  opts.Config.GetJobTTL(),
		timeout: opts.Timeout,
		tasks:   make(chan queuedTask, opts.Config.GetBuffer()),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < opts.Config.GetWorkers(); i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit records a queued job for task and hands it to the workers.
func (q *Queue) Submit(ctx context.Context, task Task) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Operation: task.Operation,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.ResultKey = "job:" + job.ID

	if err := q.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.discard(ctx, job.ID)
		return nil, ErrClosed
	}

	select {
	case q.tasks <- queuedTask{id: job.ID, task: task}:
		q.logger.Debug("job queued", "job_id", job.ID, "operation", task.Operation)
		return job, nil
	default:
		q.discard(ctx, job.ID)
		return nil, ErrQueueFull
	}
}

// discard removes the record of a job that never reached a worker.
func (q *Queue) discard(ctx context.Context, id string) {
	if err := q.store.Delete(context.WithoutCancel(ctx), id); err != nil {
		q.logger.Warn("failed to discard job", "job_id", id, "error", err)
	}
}

// Get returns the current record of job id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// Result returns the stored output of a completed job.
func (q *Queue) Result(ctx context.Context, id string) (*Job, *cache.Entry, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted {
		return job, nil, ErrJobNotReady
	}

	entry, err := q.results.Get(ctx, job.ResultKey)
	if err != nil {
		return job, nil, fmt.Errorf("failed to load job result: %w", err)
	}
	if entry == nil {
		return job, nil, ErrJobNotFound
	}
	return job, entry, nil
}

// Pending returns the number of tasks waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.tasks)
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// ends first, running tasks are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for qt := range q.tasks {
		q.run(qt)
	}
}

func (q *Queue) run(qt queuedTask) {
	ctx := logger.ContextWithJobID(q.ctx, qt.id)
	log := q.logger.With("job_id", qt.id, "operation", qt.task.Operation)

	job, err := q.store.Get(ctx, qt.id)
	if err != nil {
		log.Error("job record missing", "error", err)
		return
	}

	start := time.Now()
	var entry *cache.Entry
	runErr := q.retrier.Do(ctx, qt.task.Operation, func(ctx context.Context) error {
		job.Attempts++
		job.Status = StatusRunning
		job.UpdatedAt = time.Now().UTC()
		if err := q.store.Save(ctx, job); err != nil {
			log.Warn("failed to update job", "error", err)
		}

		if q.timeout != nil {
			if d := q.timeout(qt.task.Operation); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
		}

		var err error
		entry, err = q.handler(ctx, qt.task)
		if err == nil && entry == nil {
			return retry.Permanent(ErrNoResult)
		}
		return err
	})

	if runErr == nil {
		entry.Key = job.ResultKey
		entry.TTL = q.jobTTL
		entry.StoredAt = time.Time{}
		if err := q.results.Set(ctx, entry); err != nil {
			runErr = fmt.Errorf("failed to store result: %w", err)
		}
	}

	job.UpdatedAt = time.Now().UTC()
	if runErr != nil {
		job.Status = StatusFailed
		job.Error = runErr.Error()
		log.Warn("job failed", "attempts", job.Attempts, "error", runErr)
	} else {
		job.Status = StatusCompleted
		log.Info("job completed", "attempts", job.Attempts, "duration", time.Since(start))
	}

	if err := q.store.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Error("failed to save job", "error", err)
	}
}
