package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/store"
	"github.com/soyeahso/chatconn/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show paths, configuration summary and store counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())
			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n\n", paths.Logs)

			if _, err := os.Stat(paths.Config); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "Config file not found, using defaults")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Error loading config: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
			fmt.Fprintf(out, "Store:    driver=%s\n", cfg.Store.Driver)
			fmt.Fprintf(out, "Cache:    backend=%s ttl=%ds\n", cfg.Cache.Backend, cfg.Cache.TTLSeconds)
			fmt.Fprintf(out, "Admins:   source=%s\n", cfg.Permissions.Source)
			if cfg.Telegram.Token != "" {
				fmt.Fprintln(out, "Telegram: configured")
			} else {
				fmt.Fprintln(out, "Telegram: (not configured)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return nil
			}

			ctx := cmd.Context()
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			st, err := store.OpenBackend(ctx, cfg.Store, paths, log)
			if err != nil {
				fmt.Fprintf(out, "\nStore:    unavailable: %v\n", err)
				return nil
			}
			defer st.Close(ctx)

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("reading store stats: %w", err)
			}
			fmt.Fprintf(out, "\nChats:       %d\n", stats.Chats)
			fmt.Fprintf(out, "Connections: %d (%d active)\n", stats.Connections, stats.ActiveConnections)
			return nil
		},
	}
}
