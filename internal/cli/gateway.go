package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/commands"
	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/gateway"
	"github.com/soyeahso/chatconn/internal/observability"
	"github.com/soyeahso/chatconn/internal/telegram"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the admin gateway and the Telegram bot",
	}
	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port  int
		bind  string
		noBot bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				return fmt.Errorf("invalid override: %s", issues[0])
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = map[string]any{}
			}

			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(a.hooks),
				gateway.WithConnections(a.manager),
				gateway.WithResolver(a.resolver),
				gateway.WithSettings(a.store),
				gateway.WithAdmins(a.admins),
			}
			if cfg.Metrics.Enabled {
				opts = append(opts, gateway.WithMetricsHandler(observability.Handler(a.registry)))
			}
			srv := gateway.New(cfg, log, opts...)

			botDone := make(chan error, 1)
			switch {
			case noBot:
				botDone <- nil
			case a.bot == nil:
				log.Warn().Msg("telegram.token not set, bot commands are disabled")
				botDone <- nil
			default:
				bot := newTelegramBot(a)
				go func() { botDone <- bot.Start(ctx) }()
			}

			srvErr := srv.Start(ctx)
			stop()
			return errors.Join(srvErr, <-botDone)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "serve the gateway without polling Telegram")

	return cmd
}

// newTelegramBot wires the command set behind the resolution guard.
func newTelegramBot(a *app) *telegram.Bot {
	replier := telegram.NewReplier(a.bot)
	guard := connection.NewGuard(a.resolver, replier, a.catalog, log)
	handlers := commands.New(a.manager, guard, a.store, a.oracle, replier, a.catalog, log)
	log.Info().Strs("commands", handlers.Names()).Msg("bot commands registered")
	return telegram.NewBot(a.bot, handlers, a.store, log)
}
