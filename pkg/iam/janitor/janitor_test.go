package janitor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/identra-io/identra/pkg/iam/janitor"
)

// memoryQueue is an in-memory TaskQueue. Delayed tasks become ready on
// PromoteScheduled once due.
type memoryQueue struct {
	mu        sync.Mutex
	nextID    int
	ready     []*janitor.TaskInfo
	scheduled map[string]time.Time
	tasks     map[string]*janitor.TaskInfo
	completed []string
	failed    []string
	retried   []string
	delayed   []string
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{
		scheduled: map[string]time.Time{},
		tasks:     map[string]*janitor.TaskInfo{},
	}
}

func (q *memoryQueue) add(task janitor.Task) *janitor.TaskInfo {
	q.nextID++
	info := &janitor.TaskInfo{
		ID:         fmt.Sprintf("task-%d", q.nextID),
		Name:       task.Name,
		Status:     janitor.StatusPending,
		MaxRetries: task.MaxRetries,
		CreatedAt:  time.Now(),
	}
	q.tasks[info.ID] = info
	return info
}

func (q *memoryQueue) Enqueue(_ context.Context, task janitor.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	info := q.add(task)
	q.ready = append(q.ready, info)
	return info.ID, nil
}

func (q *memoryQueue) EnqueueDelayed(_ context.Context, task janitor.Task, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	info := q.add(task)
	q.scheduled[info.ID] = time.Now().Add(delay)
	q.delayed = append(q.delayed, task.Name)
	return info.ID, nil
}

func (q *memoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*janitor.TaskInfo, error) {
	deadline := time.After(timeout)
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			info := q.ready[0]
			q.ready = q.ready[1:]
			info.Status = janitor.StatusActive
			info.Attempts++
			q.mu.Unlock()
			return info, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-time.After(time.Millisecond):
		}
	}
}

func (q *memoryQueue) Complete(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	info, ok := q.tasks[taskID]
	if !ok {
		return errors.New("unknown task")
	}
	info.Status = janitor.StatusCompleted
	q.completed = append(q.completed, taskID)
	return nil
}

func (q *memoryQueue) Fail(_ context.Context, taskID string, errMsg string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	info, ok := q.tasks[taskID]
	if !ok {
		return false, errors.New("unknown task")
	}
	info.Error = errMsg
	if info.Attempts <= info.MaxRetries {
		info.Status = janitor.StatusRetrying
		return true, nil
	}
	info.Status = janitor.StatusFailed
	q.failed = append(q.failed, taskID)
	return false, nil
}

func (q *memoryQueue) Retry(_ context.Context, taskID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	info, ok := q.tasks[taskID]
	if !ok {
		return errors.New("unknown task")
	}
	info.Status = janitor.StatusRetrying
	q.scheduled[taskID] = time.Now().Add(delay)
	q.retried = append(q.retried, taskID)
	return nil
}

func (q *memoryQueue) PromoteScheduled(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for id, due := range q.scheduled {
		if due.After(now) {
			continue
		}
		delete(q.scheduled, id)
		info := q.tasks[id]
		info.Status = janitor.StatusPending
		q.ready = append(q.ready, info)
	}
	return nil
}

func (q *memoryQueue) snapshot() (completed, failed, retried, delayed []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.completed...),
		append([]string(nil), q.failed...),
		append([]string(nil), q.retried...),
		append([]string(nil), q.delayed...)
}

func runJanitor(t *testing.T, j *janitor.Janitor, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatalf("janitor run: %v", err)
	}
}

func TestJanitor_RunsSeededSweeps(t *testing.T) {
	queue := newMemoryQueue()
	j := janitor.New(queue,
		janitor.WithConcurrency(1),
		janitor.WithPollInterval(5*time.Millisecond),
		janitor.WithShutdownTimeout(time.Second),
	)

	var swept int64
	j.Register("tokens.purge-expired", time.Hour, func(context.Context) error {
		atomic.AddInt64(&swept, 1)
		return nil
	})

	runJanitor(t, j, 200*time.Millisecond)

	if atomic.LoadInt64(&swept) != 1 {
		t.Fatalf("expected exactly 1 pass within the hour interval, got %d", swept)
	}

	completed, _, _, delayed := queue.snapshot()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed task, got %d", len(completed))
	}
	// A completed sweep reschedules its next recurrence.
	if len(delayed) != 1 || delayed[0] != "tokens.purge-expired" {
		t.Fatalf("expected rescheduled recurrence, got %v", delayed)
	}
}

func TestJanitor_FailingSweepIsRetried(t *testing.T) {
	queue := newMemoryQueue()
	j := janitor.New(queue,
		janitor.WithConcurrency(1),
		janitor.WithPollInterval(5*time.Millisecond),
		janitor.WithRetryDelay(10*time.Millisecond),
		janitor.WithShutdownTimeout(time.Second),
	)

	var attempts int64
	j.Register("audit.retention", time.Hour, func(context.Context) error {
		if atomic.AddInt64(&attempts, 1) == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	})

	runJanitor(t, j, 400*time.Millisecond)

	if atomic.LoadInt64(&attempts) != 2 {
		t.Fatalf("expected failed attempt plus retry, got %d", attempts)
	}

	completed, failed, retried, _ := queue.snapshot()
	if len(retried) != 1 {
		t.Fatalf("expected 1 retry, got %d", len(retried))
	}
	if len(completed) != 1 {
		t.Fatalf("expected retry to complete, got %d", len(completed))
	}
	if len(failed) != 0 {
		t.Fatalf("task must not be terminally failed, got %v", failed)
	}
}

func TestJanitor_ExhaustedRetriesStillReschedule(t *testing.T) {
	queue := newMemoryQueue()
	j := janitor.New(queue,
		janitor.WithConcurrency(1),
		janitor.WithPollInterval(5*time.Millisecond),
		janitor.WithRetryDelay(5*time.Millisecond),
		janitor.WithShutdownTimeout(time.Second),
	)

	// MaxRetries comes from options; default 3 means 4 attempts per run.
	j.Register("invitations.expire", time.Hour, func(context.Context) error {
		return errors.New("always broken")
	})

	runJanitor(t, j, 500*time.Millisecond)

	_, failed, _, delayed := queue.snapshot()
	if len(failed) != 1 {
		t.Fatalf("expected the run to fail terminally, got %d", len(failed))
	}
	// One bad run must not stop the sweep: the next recurrence is queued.
	if len(delayed) != 1 || delayed[0] != "invitations.expire" {
		t.Fatalf("expected rescheduled recurrence after terminal failure, got %v", delayed)
	}
}

func TestJanitor_RejectsDoubleRun(t *testing.T) {
	j := janitor.New(newMemoryQueue(),
		janitor.WithPollInterval(5*time.Millisecond),
		janitor.WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = j.Run(ctx)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	if err := j.Run(ctx); err == nil {
		t.Fatal("second concurrent Run must be rejected")
	}
}

// ============================================================================
// Sweeps
// ============================================================================

type fakeTokenStore struct{ deleted int64 }

func (f *fakeTokenStore) DeleteExpired(context.Context) (int64, error) {
	return f.deleted, nil
}

type fakeInviteeStore struct{ expired int64 }

func (f *fakeInviteeStore) DeactivateExpiredInvitees(context.Context) (int64, error) {
	return f.expired, nil
}

type fakeAuditStore struct {
	cutoff time.Time
}

func (f *fakeAuditStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestStandardSweeps(t *testing.T) {
	if err := janitor.TokenSweep(&fakeTokenStore{deleted: 5})(context.Background()); err != nil {
		t.Fatalf("token sweep: %v", err)
	}
	if err := janitor.InvitationSweep(&fakeInviteeStore{expired: 2})(context.Background()); err != nil {
		t.Fatalf("invitation sweep: %v", err)
	}

	store := &fakeAuditStore{}
	if err := janitor.AuditRetentionSweep(store, 90*24*time.Hour)(context.Background()); err != nil {
		t.Fatalf("audit sweep: %v", err)
	}

	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	if diff := store.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff not derived from retention window: %v", store.cutoff)
	}
}
