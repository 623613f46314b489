package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/client"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue, inspect and cancel report jobs",
	}
	cmd.AddCommand(newJobsEnqueueCmd())
	cmd.AddCommand(newJobsStatusCmd())
	cmd.AddCommand(newJobsWaitCmd())
	cmd.AddCommand(newJobsCancelCmd())
	return cmd
}

type waitFlags struct {
	interval time.Duration
	timeout  time.Duration
}

func (f *waitFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", client.DefaultPollInterval, "poll interval")
	cmd.Flags().DurationVar(&f.timeout, "timeout", client.DefaultWaitTimeout, "give up after this long; the job keeps running")
}

func newJobsEnqueueCmd() *cobra.Command {
	var req client.EnqueueRequest
	var retryOf string
	var wait bool
	var wf waitFlags

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Request a new report for a scope",
		Example: `  storepulse jobs enqueue --scope-type network
  storepulse jobs enqueue --scope-type store --scope-key S001 --iso-week FY26-W11 --wait
  storepulse jobs enqueue --retry-of 3f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retryOf != "" {
				id, err := uuid.Parse(retryOf)
				if err != nil {
					return fmt.Errorf("--retry-of: %w", err)
				}
				req.RetryOf = &id
			}

			c, err := apiClient()
			if err != nil {
				return err
			}
			job, err := c.Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), job)
			}
			return waitAndPrint(cmd, c, job.ID, wf)
		},
	}
	cmd.Flags().StringVar(&req.ScopeType, "scope-type", "", "network, region or store")
	cmd.Flags().StringVar(&req.ScopeKey, "scope-key", "", "region code or store id")
	cmd.Flags().StringVar(&req.ISOWeek, "iso-week", "", "fiscal week label, e.g. FY26-W11")
	cmd.Flags().StringVar(&req.MonthKey, "month-key", "", "month in YYYY-MM form")
	cmd.Flags().StringVar(&req.CreatedBy, "created-by", "", "recorded on the job; defaults to the API key name")
	cmd.Flags().StringVar(&retryOf, "retry-of", "", "id of a failed job to retry")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	wf.register(cmd)
	return cmd
}

func newJobsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			c, err := apiClient()
			if err != nil {
				return err
			}
			job, err := c.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", id)
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobsWaitCmd() *cobra.Command {
	var wf waitFlags
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it finishes",
		Long: `Poll a job until it is succeeded, failed or canceled. Exits non-zero if
the job did not succeed or the timeout passed first. Giving up leaves the
job untouched on the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			c, err := apiClient()
			if err != nil {
				return err
			}
			return waitAndPrint(cmd, c, id, wf)
		},
	}
	wf.register(cmd)
	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			c, err := apiClient()
			if err != nil {
				return err
			}
			job, err := c.Cancel(cmd.Context(), id, note)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "reason recorded on the job")
	return cmd
}

func waitAndPrint(cmd *cobra.Command, c *client.Client, id uuid.UUID, wf waitFlags) error {
	job, err := c.WaitForJob(cmd.Context(), id, client.WaitOptions{
		Interval: wf.interval,
		Timeout:  wf.timeout,
		OnPoll: func(j *models.Job) {
			slog.Info("waiting for job", "job_id", j.ID, "status", j.Status)
		},
	})
	if job != nil {
		if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
			return perr
		}
	}
	if errors.Is(err, client.ErrGaveUp) {
		return fmt.Errorf("%w; check again later with: storepulse jobs status %s", err, id)
	}
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusSucceeded {
		return fmt.Errorf("job %s finished %s", job.ID, job.Status)
	}
	return nil
}
