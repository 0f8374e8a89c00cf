package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrUnknownTask is returned when a task name has no enqueue mapping.
var ErrUnknownTask = errors.New("jobs: unknown task")

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// Queue enqueues tasks and inspects the default queue over one redis
// connection setting.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewQueue connects a client and an inspector to redis.
func NewQueue(opts asynq.RedisClientOpt) *Queue {
	return &Queue{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases both connections.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	return errors.Join(q.client.Close(), q.inspector.Close())
}

// EnqueueSessionSweep runs the session sweep outside its schedule. Repeated
// requests within a minute collapse into one task.
func (q *Queue) EnqueueSessionSweep(ctx context.Context) (*asynq.TaskInfo, error) {
	if q == nil {
		return nil, errors.New("jobs: queue not configured")
	}
	return q.client.EnqueueContext(ctx, NewSessionSweepTask(), asynq.Unique(time.Minute))
}

// Enqueue resolves a task by its type or short name and enqueues it.
func (q *Queue) Enqueue(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	switch name {
	case TaskSessionSweep, "session-sweep":
		return q.EnqueueSessionSweep(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
}

// Stats reports the default queue counters.
func (q *Queue) Stats() (QueueStats, error) {
	if q == nil {
		return QueueStats{}, errors.New("jobs: queue not configured")
	}
	info, err := q.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Failed:    info.Failed,
	}, nil
}
