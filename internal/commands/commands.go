// Package commands implements the bot's connection commands on top of the
// connection Manager and Guard.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/i18n"
	"github.com/soyeahso/chatconn/internal/logging"
)

// Store is what the commands read and write besides connections.
type Store interface {
	FindChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	FindUserMembership(ctx context.Context, userID int64) (*domain.Membership, error)
	SaveChat(ctx context.Context, chat domain.Chat) error
	AddUserChat(ctx context.Context, userID, chatID int64) error
	SetAllowUsersConnect(ctx context.Context, chatID int64, allow *bool) error
}

// Texts renders localized strings.
type Texts interface {
	Text(lang, key string, args ...any) string
}

// Handlers holds the command set.
type Handlers struct {
	manager *connection.Manager
	guard   *connection.Guard
	store   Store
	oracle  connection.Oracle
	replier connection.Replier
	texts   Texts
	log     *logging.Logger
	routes  map[string]connection.EventHandler
}

func New(manager *connection.Manager, guard *connection.Guard, store Store, oracle connection.Oracle,
	replier connection.Replier, texts Texts, log *logging.Logger,
) *Handlers {
	h := &Handlers{
		manager: manager,
		guard:   guard,
		store:   store,
		oracle:  oracle,
		replier: replier,
		texts:   texts,
		log:     log.Sub("commands"),
	}
	h.routes = map[string]connection.EventHandler{
		"connect":    h.connect,
		"disconnect": h.disconnect,
		"connection": guard.Wrap(domain.Requirements{}, h.connection),
		"allowusersconnect": guard.Wrap(
			domain.Requirements{RequireAdmin: true, RequireGroupOnly: true},
			h.allowUsersConnect,
		),
	}
	return h
}

// Names lists the registered commands.
func (h *Handlers) Names() []string {
	return []string{"connect", "disconnect", "connection", "allowusersconnect"}
}

// Dispatch runs the command in ev, if any. It reports whether ev was a
// command this package handles.
func (h *Handlers) Dispatch(ctx context.Context, ev domain.Event) (bool, error) {
	if ev == nil {
		return false, nil
	}
	msg, _ := domain.Unwrap(ev)
	name, _ := ParseCommand(msg.Text)
	handler, ok := h.routes[name]
	if !ok {
		return false, nil
	}
	h.log.Debug().Str("command", name).Int64("chat_id", msg.ChatID).Msg("dispatching")
	return true, handler(ctx, ev)
}

// ParseCommand splits "/name@bot args" into a lowercased name and the
// trimmed arguments. Text that is not a command yields an empty name.
func ParseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, args, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (h *Handlers) reply(ctx context.Context, msg domain.Message, key string, args ...any) error {
	return h.replier.Reply(ctx, msg, h.texts.Text(msg.LanguageCode, key, args...))
}

func (h *Handlers) title(ctx context.Context, chatID int64) string {
	chat, err := h.store.FindChat(ctx, chatID)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("loading chat title")
	}
	if chat != nil && chat.Title != "" {
		return chat.Title
	}
	return strconv.FormatInt(chatID, 10)
}

// connect binds the sender's private session to a group. In the group
// itself no argument is needed; in private the chat id is.
func (h *Handlers) connect(ctx context.Context, ev domain.Event) error {
	msg, userID := domain.Unwrap(ev)
	_, args := ParseCommand(msg.Text)

	var chatID int64
	if !msg.ChatKind.IsPrivate() {
		chatID = msg.ChatID
		if err := h.store.SaveChat(ctx, domain.Chat{ID: chatID, Title: msg.ChatTitle}); err != nil {
			return err
		}
		if err := h.store.AddUserChat(ctx, userID, chatID); err != nil {
			return err
		}
	} else {
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil || id == userID {
			return h.reply(ctx, msg, i18n.KeyConnectUsage)
		}
		membership, err := h.store.FindUserMembership(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading membership of user %d: %w", userID, err)
		}
		if !membership.Contains(id) {
			return h.reply(ctx, msg, i18n.KeyNotInChat)
		}
		chatID = id
	}

	if err := h.manager.Connect(ctx, userID, chatID); err != nil {
		return err
	}
	// A resolution cached for the previous chat must not outlive the switch.
	if err := h.manager.Invalidate(ctx, userID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("invalidating after connect")
	}
	return h.reply(ctx, msg, i18n.KeyConnected, h.title(ctx, chatID))
}

func (h *Handlers) disconnect(ctx context.Context, ev domain.Event) error {
	msg, userID := domain.Unwrap(ev)

	conn, err := h.manager.Connection(ctx, userID)
	if err != nil {
		return err
	}
	chatID, ok := conn.Active()
	if !ok {
		return h.reply(ctx, msg, i18n.KeyNotConnected)
	}
	if err := h.manager.Disconnect(ctx, userID); err != nil {
		return err
	}
	return h.reply(ctx, msg, i18n.KeyDisconnected, h.title(ctx, chatID))
}

func (h *Handlers) connection(ctx context.Context, ev domain.Event, target domain.Target) error {
	msg, _ := domain.Unwrap(ev)
	if target.Source == domain.SourceLocal {
		return h.reply(ctx, msg, i18n.KeyNotConnected)
	}
	return h.reply(ctx, msg, i18n.KeyConnectedTo, target.ChatTitle, strconv.FormatInt(target.ChatID, 10))
}

// allowUsersConnect toggles whether non-admins may act through a connection
// to the target chat. Only admins may change it.
func (h *Handlers) allowUsersConnect(ctx context.Context, ev domain.Event, target domain.Target) error {
	msg, userID := domain.Unwrap(ev)

	// Only a fresh connection resolution has passed the admin requirement;
	// group targets and cache hits have not.
	if target.Source != domain.SourceConnection {
		admin, err := h.oracle.IsAdmin(ctx, target.ChatID, userID)
		if err != nil {
			return err
		}
		if !admin {
			return h.reply(ctx, msg, i18n.KeyShouldBeAdmin)
		}
	}

	_, args := ParseCommand(msg.Text)
	var allow bool
	switch strings.ToLower(args) {
	case "on", "yes", "true", "enable":
		allow = true
	case "off", "no", "false", "disable":
		allow = false
	default:
		return h.reply(ctx, msg, i18n.KeyAllowConnectUsage)
	}

	if err := h.store.SetAllowUsersConnect(ctx, target.ChatID, &allow); err != nil {
		return err
	}
	key := i18n.KeyAllowConnectOff
	if allow {
		key = i18n.KeyAllowConnectOn
	}
	return h.reply(ctx, msg, key, target.ChatTitle)
}
