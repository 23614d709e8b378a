package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

// Triggerer enqueues a job by short name.
type Triggerer interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the stock jobs.
type JobsCLI struct {
	queue Triggerer
}

// NewJobsCLI constructs the helper over queue.
func NewJobsCLI(queue Triggerer) (*JobsCLI, error) {
	if queue == nil {
		return nil, errors.New("jobs cli: queue required")
	}
	return &JobsCLI{queue: queue}, nil
}

// TriggerOptions defines the arguments of jobs trigger.
type TriggerOptions struct {
	Name   string
	Stdout io.Writer
	Stderr io.Writer
}

// TriggerCommand enqueues the named job and prints the task id.
func (c *JobsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: job name required (one of %s)\n", strings.Join(jobs.TriggerableJobs(), ", "))
		return 1
	}
	info, err := c.queue.Trigger(ctx, name)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
	return 0
}
