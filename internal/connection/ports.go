// Package connection decides which chat a bot command acts on. In a group
// that is the group itself; in a private conversation it is the group the
// user connected their session to, subject to membership, admin and
// per-chat policy checks.
package connection

import (
	"context"

	"github.com/soyeahso/chatconn/internal/domain"
)

// Store is the read side of persistence. Every method returns nil, nil when
// the record does not exist.
type Store interface {
	FindConnection(ctx context.Context, userID int64) (*domain.Connection, error)
	FindChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	FindUserMembership(ctx context.Context, userID int64) (*domain.Membership, error)
	FindChatConnectionSettings(ctx context.Context, chatID int64) (*domain.ChatConnectionSettings, error)
}

// Writer mutates connection records.
type Writer interface {
	UpsertConnection(ctx context.Context, userID, chatID int64) error
	UnsetConnectionChat(ctx context.Context, userID int64) error
}

// Oracle reports whether a user administers a chat.
type Oracle interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Cache memoizes authorised connection targets per user.
type Cache interface {
	Get(ctx context.Context, userID int64) (domain.Target, bool, error)
	Put(ctx context.Context, userID int64, target domain.Target) error
	Invalidate(ctx context.Context, userID int64) error
}

// Replier answers the user in the chat a message came from.
type Replier interface {
	Reply(ctx context.Context, msg domain.Message, text string) error
}

// Localizer renders refusal reasons in a language.
type Localizer interface {
	Refusal(lang string, r domain.Reason) string
}
