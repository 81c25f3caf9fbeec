package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/domain"
)

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <user-id> <chat-id>",
		Short: "Connect a user's private session to a chat",
		Long: "Connect a user's private session to a chat. Unlike the bot's /connect\n" +
			"this skips the membership and policy checks.",
		Example: "  chatconn connect 42 -- -1001234567890",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			chatID, err := parseID("chat", args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.Connect(ctx, userID, chatID); err != nil {
					return err
				}
				if err := a.manager.Invalidate(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected %d to %d\n", userID, chatID)
				return nil
			})
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <user-id>",
		Short: "Clear a user's active connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.Disconnect(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %d\n", userID)
				return nil
			})
		},
	}
}

func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Inspect stored connections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's connection and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				conn, err := a.manager.Connection(ctx, userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if chatID, ok := conn.Active(); ok {
					fmt.Fprintf(out, "User %d is connected to %d\n", userID, chatID)
				} else {
					fmt.Fprintf(out, "User %d is not connected\n", userID)
				}
				if conn != nil && len(conn.History) > 0 {
					fmt.Fprintf(out, "History: %v\n", conn.History)
				}
				return nil
			})
		},
	})
	return cmd
}

func newResolveCmd() *cobra.Command {
	var (
		userID, chatID int64
		kind, title    string
		lang           string
		req            domain.Requirements
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which chat a command from a user would act on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			msg := domain.Message{
				ChatID:       chatID,
				ChatKind:     domain.ChatKind(kind),
				ChatTitle:    title,
				FromID:       userID,
				LanguageCode: lang,
				Timestamp:    time.Now(),
			}
			if msg.ChatID == 0 {
				msg.ChatID = userID
			}
			if msg.ChatKind == "" {
				msg.ChatKind = domain.ChatKindPrivate
				if msg.ChatID != userID {
					msg.ChatKind = domain.ChatKindSupergroup
				}
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				out, err := a.resolver.Resolve(ctx, connection.Request{Message: msg, Requirements: req})
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if !out.OK() {
					fmt.Fprintf(w, "refused: %s\n%s\n", out.Reason, a.catalog.Refusal(lang, out.Reason))
					return nil
				}
				t := out.Target
				fmt.Fprintf(w, "chat:    %d\ntitle:   %s\nsource:  %s\nprivate: %t\n",
					t.ChatID, t.ChatTitle, t.Source, t.IsPrivateConnection)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Int64Var(&userID, "user", 0, "acting user id")
	f.Int64Var(&chatID, "chat", 0, "chat the command arrives in (default: the user's private chat)")
	f.StringVar(&kind, "kind", "", "chat kind: private, group, supergroup, channel")
	f.StringVar(&title, "title", "", "chat title carried by the message")
	f.StringVar(&lang, "lang", "", "language code for the refusal text")
	f.BoolVar(&req.RequireAdmin, "admin", false, "command requires admin rights")
	f.BoolVar(&req.RequireGroupOnly, "groups-only", false, "command cannot run on the private chat itself")
	return cmd
}
