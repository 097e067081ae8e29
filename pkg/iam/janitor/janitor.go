package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/identra-io/identra/pkg/logx"
)

// SweepFunc performs one maintenance sweep. Return nil on success, an error
// to trigger retry/fail.
type SweepFunc func(ctx context.Context) error

// TaskQueue provides backend operations for the sweep loop. Sweeps are
// queued rather than run inline so that multiple instances of the service
// share the work instead of duplicating it.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	EnqueueDelayed(ctx context.Context, task Task, delay time.Duration) (string, error)
	Dequeue(ctx context.Context, timeout time.Duration) (*TaskInfo, error)
	Complete(ctx context.Context, taskID string) error
	Fail(ctx context.Context, taskID string, errMsg string) (retry bool, err error)
	Retry(ctx context.Context, taskID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context) error
}

// Janitor runs the recurring maintenance sweeps of the identity store:
// expired verification tokens, lapsed invitations, audit retention. Each
// registered sweep is re-enqueued with its interval after every run.
type Janitor struct {
	queue  TaskQueue
	opts   Options
	sweeps map[string]*registration
	mu     sync.RWMutex

	running bool
}

type registration struct {
	fn       SweepFunc
	interval time.Duration
}

// New creates a janitor over the given queue.
func New(queue TaskQueue, options ...Option) *Janitor {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Janitor{
		queue:  queue,
		opts:   opts,
		sweeps: make(map[string]*registration),
	}
}

// Register adds a named sweep with its recurrence interval.
func (j *Janitor) Register(name string, interval time.Duration, fn SweepFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps[name] = &registration{fn: fn, interval: interval}
}

// Run seeds every registered sweep and processes tasks until ctx is
// cancelled. It blocks.
func (j *Janitor) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return janitorErrors.New(ErrAlreadyRunning)
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	j.seed(ctx)

	logx.Infof("janitor: starting %d workers, %d sweeps registered", j.opts.Concurrency, len(j.sweeps))

	var wg sync.WaitGroup

	// Scheduler goroutine: promotes due tasks to the ready queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.schedulerLoop(ctx)
	}()

	for i := 0; i < j.opts.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			j.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("janitor: shutting down...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("janitor: all workers stopped")
	case <-time.After(j.opts.ShutdownTimeout):
		logx.Warn("janitor: shutdown timed out, a sweep may not have completed")
	}

	return nil
}

// seed enqueues one task per registered sweep so a fresh deployment does its
// first pass promptly. Duplicate seeds from concurrent instances are benign:
// sweeps are idempotent bulk deletes.
func (j *Janitor) seed(ctx context.Context) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for name := range j.sweeps {
		if _, err := j.queue.Enqueue(ctx, Task{Name: name, MaxRetries: j.opts.MaxRetries}); err != nil {
			logx.WithError(err).Warnf("janitor: failed to seed sweep %q", name)
		}
	}
}

func (j *Janitor) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(j.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.queue.PromoteScheduled(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("janitor: failed to promote scheduled tasks")
			}
		}
	}
}

func (j *Janitor) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := j.queue.Dequeue(ctx, j.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("janitor: worker %d dequeue error", id)
			time.Sleep(j.opts.PollInterval)
			continue
		}
		if task == nil {
			continue
		}

		j.process(ctx, task)
	}
}

func (j *Janitor) process(ctx context.Context, task *TaskInfo) {
	j.mu.RLock()
	reg, ok := j.sweeps[task.Name]
	j.mu.RUnlock()

	if !ok {
		logx.Warnf("janitor: no sweep registered for task %q (id=%s)", task.Name, task.ID)
		_, _ = j.queue.Fail(ctx, task.ID, "no sweep registered")
		return
	}

	if err := reg.fn(ctx); err != nil {
		logx.WithError(err).Warnf("janitor: sweep %q failed", task.Name)

		shouldRetry, failErr := j.queue.Fail(ctx, task.ID, err.Error())
		if failErr != nil {
			logx.WithError(failErr).Errorf("janitor: failed to mark task %s as failed", task.ID)
			return
		}
		if shouldRetry {
			if retryErr := j.queue.Retry(ctx, task.ID, j.opts.RetryDelay); retryErr != nil {
				logx.WithError(retryErr).Errorf("janitor: failed to retry task %s", task.ID)
			}
			return
		}
		// Out of retries: still reschedule the next recurrence, one bad
		// pass must not stop the sweep permanently.
	} else if err := j.queue.Complete(ctx, task.ID); err != nil {
		logx.WithError(err).Errorf("janitor: failed to complete task %s", task.ID)
	}

	next := Task{Name: task.Name, MaxRetries: j.opts.MaxRetries}
	if _, err := j.queue.EnqueueDelayed(ctx, next, reg.interval); err != nil {
		logx.WithError(err).Errorf("janitor: failed to reschedule sweep %q", task.Name)
	}
}
