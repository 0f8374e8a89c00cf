package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/worksite-pm/worksite/internal/jobs"
)

// SessionSweeper deletes expired sessions and reports how many were removed.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// SessionSweepJob removes expired rows from the sessions table so the
// authoritative session check never scans stale logins.
type SessionSweepJob struct {
	Sweeper SessionSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionSweepJob initialises the sweep handler.
func NewSessionSweepJob(sweeper SessionSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *SessionSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("session sweep: handler not configured")
	}
	done := j.Metrics.Run(TaskSessionSweep)
	defer func() {
		err = done(err)
	}()

	start := time.Now()
	removed, err := j.Sweeper.SweepExpiredSessions(ctx)
	if err != nil {
		j.logger().Error("session sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSweptSessions(removed)
	j.logger().Info("session sweep completed",
		slog.Int64("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
