package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/worksite-pm/worksite/jobs"
)

// JobQueue is the subset of jobs.Queue used by the jobs subcommands.
type JobQueue interface {
	Stats() (jobs.QueueStats, error)
	Enqueue(ctx context.Context, name string) (*asynq.TaskInfo, error)
}

func statsCommand(queue JobQueue, stdout, stderr io.Writer) int {
	stats, err := queue.Stats()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(stdout, "%s: pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
	return ExitOK
}

func triggerCommand(ctx context.Context, queue JobQueue, name string, stdout, stderr io.Writer) int {
	info, err := queue.Enqueue(ctx, name)
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return ExitOK
	case errors.Is(err, asynq.ErrDuplicateTask):
		_, _ = fmt.Fprintf(stdout, "%s already queued\n", name)
		return ExitOK
	default:
		_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return ExitError
	}
}
