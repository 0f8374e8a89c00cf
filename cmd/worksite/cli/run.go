package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/worksite-pm/worksite/jobs"
)

const usage = `usage:
  worksite                                   start the HTTP server
  worksite policy validate [--json] [PATH]   load and list a policy file
  worksite policy check [--policy PATH] ROLE RESOURCE ACTION
  worksite jobs trigger session-sweep [--redis ADDR]
  worksite jobs stats [--redis ADDR]
`

// Run dispatches an operational subcommand and returns the process exit
// code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	stdout, stderr = defaultWriters(stdout, stderr)
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return ExitError
	}
	switch args[0] + " " + args[1] {
	case "policy validate":
		fs := newFlagSet("policy validate", stderr)
		jsonOut := fs.Bool("json", false, "print the policy as JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return flagExit(err)
		}
		return ValidateCommand(PolicyValidateOptions{Path: fs.Arg(0), JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "policy check":
		fs := newFlagSet("policy check", stderr)
		path := fs.String("policy", "", "policy file (default: embedded policy)")
		if err := fs.Parse(args[2:]); err != nil {
			return flagExit(err)
		}
		if fs.NArg() != 3 {
			_, _ = fmt.Fprint(stderr, usage)
			return ExitError
		}
		return CheckCommand(PolicyCheckOptions{Path: *path, Role: fs.Arg(0), Resource: fs.Arg(1), Action: fs.Arg(2), Stdout: stdout, Stderr: stderr})
	case "jobs trigger", "jobs stats":
		fs := newFlagSet(args[0]+" "+args[1], stderr)
		redisAddr := fs.String("redis", "127.0.0.1:6379", "redis address of the job queue")
		if err := fs.Parse(args[2:]); err != nil {
			return flagExit(err)
		}
		queue := jobs.NewQueue(asynq.RedisClientOpt{Addr: *redisAddr})
		defer func() { _ = queue.Close() }()
		if args[1] == "stats" {
			return statsCommand(queue, stdout, stderr)
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprint(stderr, usage)
			return ExitError
		}
		return triggerCommand(ctx, queue, fs.Arg(0), stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return ExitError
	}
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func flagExit(err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	return ExitError
}
