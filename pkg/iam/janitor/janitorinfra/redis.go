package janitorinfra

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/identra-io/identra/pkg/iam/janitor"
)

const (
	readyKey     = "janitor:ready"
	scheduledKey = "janitor:scheduled"
	taskKeyPre   = "janitor:task:"
)

// taskTTL bounds how long finished task records linger for inspection.
const taskTTL = 24 * time.Hour

// RedisTaskQueue implements janitor.TaskQueue backed by Redis. A single
// shared queue lets multiple service instances split the maintenance work.
type RedisTaskQueue struct {
	rdb *redis.Client
}

// NewRedisTaskQueue creates a new Redis-backed task queue.
func NewRedisTaskQueue(rdb *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{rdb: rdb}
}

func taskKey(id string) string { return taskKeyPre + id }

// Enqueue adds a task to the ready queue immediately.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, task janitor.Task) (string, error) {
	id, data, err := newTaskRecord(task)
	if err != nil {
		return "", err
	}

	pipe := q.rdb.Pipeline()
	pipe.Set(ctx, taskKey(id), data, taskTTL)
	pipe.LPush(ctx, readyKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("task", task.Name)
	}
	return id, nil
}

// EnqueueDelayed adds a task to the scheduled set with a future due time.
func (q *RedisTaskQueue) EnqueueDelayed(ctx context.Context, task janitor.Task, delay time.Duration) (string, error) {
	id, data, err := newTaskRecord(task)
	if err != nil {
		return "", err
	}

	score := float64(time.Now().UTC().Add(delay).Unix())

	pipe := q.rdb.Pipeline()
	pipe.Set(ctx, taskKey(id), data, taskTTL+delay)
	pipe.ZAdd(ctx, scheduledKey, redis.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("task", task.Name).
			WithDetail("delay", delay.String())
	}
	return id, nil
}

// Dequeue blocks until a task is ready or the timeout expires. A nil task
// with a nil error means the timeout elapsed.
func (q *RedisTaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*janitor.TaskInfo, error) {
	result, err := q.rdb.BRPop(ctx, timeout, readyKey).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	// result[0] = key, result[1] = task id
	info, err := q.get(ctx, result[1])
	if err != nil {
		return nil, err
	}

	info.Status = janitor.StatusActive
	info.Attempts++
	if err := q.put(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Complete marks a task as successfully completed.
func (q *RedisTaskQueue) Complete(ctx context.Context, taskID string) error {
	info, err := q.get(ctx, taskID)
	if err != nil {
		return err
	}
	info.Status = janitor.StatusCompleted
	return q.put(ctx, info)
}

// Fail marks a task as failed. Returns true when the task has retries left.
func (q *RedisTaskQueue) Fail(ctx context.Context, taskID string, errMsg string) (bool, error) {
	info, err := q.get(ctx, taskID)
	if err != nil {
		return false, err
	}

	shouldRetry := info.Attempts <= info.MaxRetries
	if shouldRetry {
		info.Status = janitor.StatusRetrying
	} else {
		info.Status = janitor.StatusFailed
	}
	info.Error = errMsg

	if err := q.put(ctx, info); err != nil {
		return false, err
	}
	return shouldRetry, nil
}

// Retry re-schedules a failed task after the given delay.
func (q *RedisTaskQueue) Retry(ctx context.Context, taskID string, delay time.Duration) error {
	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, scheduledKey, redis.Z{Score: score, Member: taskID}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrRetry, err).WithDetail("task_id", taskID)
	}
	return nil
}

// promoteScript moves due tasks from the scheduled set to the ready queue
// atomically, so concurrent promoters never double-promote.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', KEYS[2], id)
    end
    redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return #ids
`)

// PromoteScheduled moves tasks whose due time has passed to the ready queue.
func (q *RedisTaskQueue) PromoteScheduled(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	err := promoteScript.Run(ctx, q.rdb, []string{scheduledKey, readyKey}, now).Err()
	if err != nil && err != redis.Nil {
		return redisErrors.NewWithCause(ErrPromote, err)
	}
	return nil
}

func newTaskRecord(task janitor.Task) (string, []byte, error) {
	now := time.Now().UTC()
	info := janitor.TaskInfo{
		ID:         uuid.NewString(),
		Name:       task.Name,
		Status:     janitor.StatusPending,
		MaxRetries: task.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", nil, redisErrors.NewWithCause(ErrMarshal, err)
	}
	return info.ID, data, nil
}

func (q *RedisTaskQueue) get(ctx context.Context, taskID string) (*janitor.TaskInfo, error) {
	data, err := q.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, redisErrors.New(ErrNotFound).WithDetail("task_id", taskID)
		}
		return nil, redisErrors.NewWithCause(ErrGetTask, err).WithDetail("task_id", taskID)
	}

	var info janitor.TaskInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("task_id", taskID)
	}
	return &info, nil
}

func (q *RedisTaskQueue) put(ctx context.Context, info *janitor.TaskInfo) error {
	info.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("task_id", info.ID)
	}
	if err := q.rdb.Set(ctx, taskKey(info.ID), data, redis.KeepTTL).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("task_id", info.ID)
	}
	return nil
}
