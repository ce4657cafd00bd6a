package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ErrQueueFull is returned by Submit when no more builds can be queued.
var ErrQueueFull = errors.New("build queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("orchestrator stopped")

// Options configures an Orchestrator.
type Options struct {
	WorkerCount     int
	MaxQueueSize    int
	JobTTL          time.Duration
	RebuildInterval time.Duration // 0 disables periodic rebuilds
	CleanupInterval time.Duration // job store eviction period, default 5m
}

// Orchestrator queues site builds and runs them on worker goroutines.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	worker *Worker
	log    *slog.Logger
	opts   Options

	scheduler gocron.Scheduler

	mu      sync.RWMutex
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to begin processing.
func NewOrchestrator(opts Options, worker *Worker, log *slog.Logger) *Orchestrator {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = 10
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	return &Orchestrator{
		jobs:   NewJobStore(opts.JobTTL),
		queue:  make(chan *Job, opts.MaxQueueSize),
		worker: worker,
		log:    log,
		opts:   opts,
	}
}

// Start launches worker goroutines, job store cleanup and, when configured,
// the periodic rebuild schedule.
func (o *Orchestrator) Start(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.opts.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					_ = o.worker.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()

	if o.opts.RebuildInterval > 0 {
		s, err := gocron.NewScheduler()
		if err != nil {
			cancel()
			return fmt.Errorf("create scheduler: %w", err)
		}
		_, err = s.NewJob(
			gocron.DurationJob(o.opts.RebuildInterval),
			gocron.NewTask(o.scheduledBuild),
			gocron.WithName("periodic-rebuild"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = s.Shutdown()
			return fmt.Errorf("schedule periodic rebuild: %w", err)
		}
		s.Start()
		o.scheduler = s
		o.log.Info("periodic rebuilds scheduled", "interval", o.opts.RebuildInterval.String())
	}
	return nil
}

func (o *Orchestrator) scheduledBuild() {
	job, err := o.Trigger(TriggerSchedule)
	if err != nil {
		o.log.Warn("scheduled build not queued", "error", err)
		return
	}
	o.log.Info("scheduled build queued", "job_id", job.ID)
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.scheduler != nil {
		if err := o.scheduler.Shutdown(); err != nil {
			o.log.Warn("scheduler shutdown", "error", err)
		}
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return ErrStopped
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.opts.MaxQueueSize)
	}
}

// Trigger queues a new build started by t.
func (o *Orchestrator) Trigger(t Trigger) (*Job, error) {
	job := NewJob(t)
	if err := o.Submit(job); err != nil {
		return job, err
	}
	return job, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
