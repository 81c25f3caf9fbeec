package domain

import "slices"

// Chat is the stored metadata of a chat the bot has seen.
type Chat struct {
	ID    int64  `json:"chatId" bson:"chat_id"`
	Title string `json:"chatTitle" bson:"chat_title"`
}

// Membership is the set of chats a user has been observed in.
// It is a snapshot and may lag behind bans or leaves.
type Membership struct {
	UserID int64   `json:"userId" bson:"user_id"`
	Chats  []int64 `json:"chats" bson:"chats"`
}

// Contains reports whether the user was seen in chatID.
func (m *Membership) Contains(chatID int64) bool {
	if m == nil {
		return false
	}
	return slices.Contains(m.Chats, chatID)
}

// ChatConnectionSettings is the per-chat connection policy.
type ChatConnectionSettings struct {
	ChatID            int64 `json:"chatId" bson:"chat_id"`
	AllowUsersConnect *bool `json:"allowUsersConnect,omitempty" bson:"allow_users_connect,omitempty"`
}

// ForbidsUsers reports whether non-admins are barred from acting through a
// connection. Only an explicit false forbids; an unset flag allows.
func (s *ChatConnectionSettings) ForbidsUsers() bool {
	return s != nil && s.AllowUsersConnect != nil && !*s.AllowUsersConnect
}
