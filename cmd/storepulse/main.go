// Command storepulse is the operator and cron CLI for the storepulse server.
//
//	storepulse worker run                 # process one queued job (cron)
//	storepulse jobs enqueue --scope-type region --scope-key AKL --wait
//	storepulse jobs status <job-id>
//	storepulse snapshot latest --scope-type network
//	storepulse keys create --name cron --scope worker
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/client"
	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storepulse",
		Short: "Operate the storepulse report pipeline",
		Long: `storepulse — operate the store feedback report pipeline.

Commands that talk to a running server read STOREPULSE_API_URL and
STOREPULSE_API_KEY. "worker run" and "keys create" connect to Postgres
directly using DATABASE_URL.`,
		SilenceUsage: true,
	}

	root.AddCommand(newWorkerCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newKeysCmd())
	return root
}

// apiClient builds a client from the CLI environment.
func apiClient() (*client.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return client.New(cfg.APIURL, cfg.APIKey), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
