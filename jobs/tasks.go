package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep deletes expired login sessions.
	TaskSessionSweep = "auth:session_sweep"
)

// NewSessionSweepTask constructs the sweep task. It carries no payload; the
// cutoff is the worker's clock at execution time.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}
