// Package cli implements the chatconn command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// set by the root command before any subcommand runs
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatconn",
		Short: "chatconn manages users' private connections to group chats",
		Long: "chatconn lets bot users run group commands from a private chat by connecting\n" +
			"to a group. It serves the admin gateway, runs the Telegram bot and offers\n" +
			"offline tools for inspecting and editing connections.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatconn/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newConnectionCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newMemberCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newSettingsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads and validates the config file. Without --log-level the
// configured level and console style replace the bootstrap logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel == "" {
		log = logging.NewStyled(cfg.Logging.Level, cfg.Logging.ConsoleStyle)
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}
