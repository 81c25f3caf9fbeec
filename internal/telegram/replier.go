// Package telegram adapts the Bot API client to the connection package.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/soyeahso/chatconn/internal/domain"
)

// Sender is the slice of *tgbotapi.BotAPI used for replies.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Replier answers in the chat the message came from, quoting it.
type Replier struct {
	bot Sender
}

func NewReplier(bot Sender) *Replier {
	return &Replier{bot: bot}
}

func (r *Replier) Reply(ctx context.Context, msg domain.Message, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := tgbotapi.NewMessage(msg.ChatID, text)
	if msg.ID != 0 {
		out.ReplyToMessageID = int(msg.ID)
	}
	if _, err := r.bot.Send(out); err != nil {
		return fmt.Errorf("sending reply to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

// NewAPI creates an authenticated Bot API client.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram client: %w", err)
	}
	return bot, nil
}

// MessageFromUpdate converts a Bot API message into the domain form.
func MessageFromUpdate(m *tgbotapi.Message) domain.Message {
	out := domain.Message{
		ID:        int64(m.MessageID),
		Text:      m.Text,
		Timestamp: m.Time(),
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
		out.ChatKind = domain.ChatKind(m.Chat.Type)
		out.ChatTitle = m.Chat.Title
	}
	if m.From != nil {
		out.FromID = m.From.ID
		out.FromName = m.From.UserName
		out.LanguageCode = m.From.LanguageCode
	}
	return out
}

// EventFromUpdate returns the event an update carries, or nil if it carries
// none the connection layer understands. Callback queries act for the user
// who pressed the button, on the message that holds it.
func EventFromUpdate(u tgbotapi.Update) domain.Event {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.From != nil:
		msg := MessageFromUpdate(u.CallbackQuery.Message)
		msg.LanguageCode = u.CallbackQuery.From.LanguageCode
		return domain.WrappedEvent{
			UserID:  u.CallbackQuery.From.ID,
			Message: msg,
			Data:    u.CallbackQuery.Data,
		}
	case u.Message != nil:
		return domain.BareMessage{Message: MessageFromUpdate(u.Message)}
	case u.EditedMessage != nil && u.EditedMessage.From != nil:
		return domain.WrappedEvent{
			UserID:  u.EditedMessage.From.ID,
			Message: MessageFromUpdate(u.EditedMessage),
		}
	default:
		return nil
	}
}
