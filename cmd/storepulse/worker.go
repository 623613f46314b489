package main

import (
	"fmt"

	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/internal/report"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the report worker",
	}

	var viaAPI bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Claim and process at most one queued job",
		Long: `Claim the oldest queued report job, analyze it and write its snapshot.
Exits after one job, or immediately when the queue is empty, so it can be
scheduled from cron. With --via-api the server does the work instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if viaAPI {
				c, err := apiClient()
				if err != nil {
					return err
				}
				out, err := c.RunWorker(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			return runWorkerDirect(cmd)
		},
	}
	run.Flags().BoolVar(&viaAPI, "via-api", false, "trigger POST /api/v1/worker/run instead of connecting to Postgres")
	cmd.AddCommand(run)
	return cmd
}

func runWorkerDirect(cmd *cobra.Command) error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}

	worker := report.NewWorker(store.NewPostgresStore(pool), provider, report.WorkerConfig{
		MaxRows:              cfg.Report.MaxRows,
		MaxFieldBytes:        cfg.Report.MaxFieldBytes,
		InferenceTimeout:     cfg.AI.InferenceTimeout,
		PlaceholderOnFailure: cfg.Report.PlaceholderOnFailure,
	})
	out, err := worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
