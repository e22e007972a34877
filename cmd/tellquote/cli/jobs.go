package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/tellquote/tellquote/jobs"
)

// JobQueue is the subset of JobsCLI the commands use.
type JobQueue interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers for the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.Enqueue(ctx, name, "cli")
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger or inspect background jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:       "trigger <task>",
			Short:     "Enqueue a job now (" + jobs.TaskRatesRefresh + ", " + jobs.TaskQuotesSync + ")",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{jobs.TaskRatesRefresh, jobs.TaskQuotesSync},
			RunE: func(cmd *cobra.Command, args []string) error {
				queue, err := openJobs(deps)
				if err != nil {
					return err
				}
				defer queue.Close()
				info, err := queue.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return err
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the default queue state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				queue, err := openJobs(deps)
				if err != nil {
					return err
				}
				defer queue.Close()
				stats, err := queue.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "queue %s: pending %d, active %d, scheduled %d, retry %d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
				return err
			},
		},
	)
	return cmd
}

func openJobs(deps Deps) (JobQueue, error) {
	if deps.Jobs == nil {
		return nil, errNotConfigured
	}
	return deps.Jobs()
}
