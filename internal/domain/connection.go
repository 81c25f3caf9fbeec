package domain

// Connection binds a user's private session to a chat.
// ChatID is nil while disconnected. History keeps every chat ever connected
// to, in first-connection order, without duplicates.
type Connection struct {
	UserID  int64   `json:"userId" bson:"user_id"`
	ChatID  *int64  `json:"chatId,omitempty" bson:"chat_id,omitempty"`
	History []int64 `json:"history,omitempty" bson:"history,omitempty"`
}

// Active returns the connected chat, if any.
func (c *Connection) Active() (int64, bool) {
	if c == nil || c.ChatID == nil {
		return 0, false
	}
	return *c.ChatID, true
}

