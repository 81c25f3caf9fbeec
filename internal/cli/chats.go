package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/domain"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage known chats",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <chat-id> <title...>",
		Short: "Record a chat and its title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID("chat", args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.SaveChat(ctx, domain.Chat{ID: chatID, Title: title}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved chat %d (%s)\n", chatID, title)
				return nil
			})
		},
	})
	return cmd
}

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage the user-to-chat membership snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <user-id> <chat-id>",
		Short: "Record that a user is in a chat",
		Args:  cobra.ExactArgs(2),
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
				if err := a.store.AddUserChat(ctx, userID, chatID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d is a member of %d\n", userID, chatID)
				return nil
			})
		},
	})
	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin records used by the store permission source",
	}
	for _, grant := range []bool{true, false} {
		use, verb := "add", "Grant"
		if !grant {
			use, verb = "remove", "Revoke"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use + " <chat-id> <user-id>",
			Short: verb + " admin rights in a chat",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				chatID, err := parseID("chat", args[0])
				if err != nil {
					return err
				}
				userID, err := parseID("user", args[1])
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					if err := a.admins.SetChatAdmin(ctx, chatID, userID, grant); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "User %d admin in %d: %t\n", userID, chatID, grant)
					return nil
				})
			},
		})
	}
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-chat connection policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "allow-connect <chat-id> <true|false|unset>",
		Short:     "Allow or forbid non-admins to connect to a chat",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"true", "false", "unset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID("chat", args[0])
			if err != nil {
				return err
			}
			var allow *bool
			switch strings.ToLower(args[1]) {
			case "true", "on", "yes":
				v := true
				allow = &v
			case "false", "off", "no":
				v := false
				allow = &v
			case "unset":
			default:
				return fmt.Errorf("expected true, false or unset, got %q", args[1])
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.SetAllowUsersConnect(ctx, chatID, allow); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Chat %d allow-connect: %s\n", chatID, strings.ToLower(args[1]))
				return nil
			})
		},
	})
	return cmd
}
