package main

import (
	"fmt"

	"github.com/kiranshivaraju/storepulse/internal/apikey"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	var name string
	var scopes []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key directly in the database",
		Long: `Create an API key directly in Postgres. Use this to bootstrap the first
admin key; afterwards keys can be managed through /api/v1/admin/keys.
The raw key is printed once and cannot be recovered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			raw, key, err := apikey.Generate(name, scopes)
			if err != nil {
				return err
			}

			cfg, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			if err := store.NewPostgresStore(pool).CreateAPIKey(cmd.Context(), key); err != nil {
				return fmt.Errorf("create api key: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":     key.ID,
				"name":   key.Name,
				"scopes": key.Scopes,
				"key":    raw,
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	create.Flags().StringSliceVar(&scopes, "scope", []string{"read"}, "scopes: read, write, worker, admin")
	cmd.AddCommand(create)
	return cmd
}
