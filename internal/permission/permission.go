// Package permission answers whether a user administers a chat.
//
// A user always administers their own private chat (chatID == userID), so a
// local resolution never needs a remote lookup.
package permission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/soyeahso/chatconn/internal/logging"
)

// Oracle reports admin status.
type Oracle interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// AdminLookup is the store side of admin tracking.
type AdminLookup interface {
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// StoreOracle answers from admin records kept in the store.
type StoreOracle struct {
	store AdminLookup
}

func NewStoreOracle(store AdminLookup) *StoreOracle {
	return &StoreOracle{store: store}
}

func (o *StoreOracle) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}
	return o.store.IsChatAdmin(ctx, chatID, userID)
}

// MemberGetter is the slice of the Bot API client used for admin checks.
// *tgbotapi.BotAPI satisfies it.
type MemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// TelegramOracle asks Telegram for the member's status. Creators and
// administrators count as admins.
type TelegramOracle struct {
	api MemberGetter
	log *logging.Logger
}

func NewTelegramOracle(api MemberGetter, log *logging.Logger) *TelegramOracle {
	return &TelegramOracle{api: api, log: log.Sub("permission")}
}

func (o *TelegramOracle) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	member, err := o.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("getting member %d of chat %d: %w", userID, chatID, err)
	}

	admin := member.IsCreator() || member.IsAdministrator()
	o.log.Debug().Int64("chat_id", chatID).Int64("user_id", userID).Str("status", member.Status).Bool("admin", admin).Msg("member status")
	return admin, nil
}

// Cached memoizes another oracle's answers for a short time. Errors are not
// memoized.
type Cached struct {
	next Oracle
	memo *expirable.LRU[string, bool]
}

// NewCached wraps next. A non-positive ttl disables memoization and every
// call goes to next.
func NewCached(next Oracle, size int, ttl time.Duration) *Cached {
	if ttl <= 0 {
		return &Cached{next: next}
	}
	if size <= 0 {
		size = 4096
	}
	return &Cached{next: next, memo: expirable.NewLRU[string, bool](size, nil, ttl)}
}

func memoKey(chatID, userID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func (c *Cached) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if c.memo == nil {
		return c.next.IsAdmin(ctx, chatID, userID)
	}
	key := memoKey(chatID, userID)
	if admin, ok := c.memo.Get(key); ok {
		return admin, nil
	}
	admin, err := c.next.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	c.memo.Add(key, admin)
	return admin, nil
}

// Forget drops a memoized answer, e.g. after an admin change.
func (c *Cached) Forget(chatID, userID int64) {
	if c.memo == nil {
		return
	}
	c.memo.Remove(memoKey(chatID, userID))
}

// AdminWriter is the store side of admin changes.
type AdminWriter interface {
	SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error
}

// Admins records admin changes and drops the memoized answer for the pair,
// so the next check sees the change.
type Admins struct {
	store AdminWriter
	memo  *Cached
}

// NewAdmins writes through store. memo may be nil.
func NewAdmins(store AdminWriter, memo *Cached) *Admins {
	return &Admins{store: store, memo: memo}
}

func (a *Admins) SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error {
	err := a.store.SetChatAdmin(ctx, chatID, userID, admin)
	if a.memo != nil {
		a.memo.Forget(chatID, userID)
	}
	if err != nil {
		return fmt.Errorf("setting admin %d in chat %d: %w", userID, chatID, err)
	}
	return nil
}
