package domain

import "time"

// ChatKind classifies the conversation a message arrived in.
type ChatKind string

const (
	ChatKindPrivate    ChatKind = "private"
	ChatKindGroup      ChatKind = "group"
	ChatKindSupergroup ChatKind = "supergroup"
	ChatKindChannel    ChatKind = "channel"
)

// IsPrivate reports whether the chat is a one-to-one conversation with the bot.
// Unknown kinds are treated as non-private.
func (k ChatKind) IsPrivate() bool {
	return k == ChatKindPrivate
}

// Message is an inbound chat message as seen by command handlers.
type Message struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chatId"`
	ChatKind     ChatKind  `json:"chatKind"`
	ChatTitle    string    `json:"chatTitle,omitempty"`
	FromID       int64     `json:"fromId"`
	FromName     string    `json:"fromName,omitempty"`
	LanguageCode string    `json:"languageCode,omitempty"`
	Text         string    `json:"text,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
