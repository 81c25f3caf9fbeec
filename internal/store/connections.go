package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soyeahso/chatconn/internal/domain"
)

// SQLiteStore implements the connection reader and writer on a DB.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore creates a store over an open database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// FindConnection returns the user's connection record, or nil if the user
// never connected.
func (s *SQLiteStore) FindConnection(ctx context.Context, userID int64) (*domain.Connection, error) {
	var chatID sql.NullInt64
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT chat_id FROM connections WHERE user_id = ?", userID,
	).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding connection for user %d: %w", userID, err)
	}

	conn := &domain.Connection{UserID: userID}
	if chatID.Valid {
		id := chatID.Int64
		conn.ChatID = &id
	}

	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT chat_id FROM connection_history WHERE user_id = ? ORDER BY id", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for user %d: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		conn.History = append(conn.History, id)
	}
	return conn, rows.Err()
}

// UpsertConnection makes chatID the user's active chat and records it in
// the history if it is not there yet.
func (s *SQLiteStore) UpsertConnection(ctx context.Context, userID, chatID int64) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert connection: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO connections (user_id, chat_id, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(user_id) DO UPDATE SET
		   chat_id = excluded.chat_id,
		   updated_at = excluded.updated_at`,
		userID, chatID,
	); err != nil {
		return fmt.Errorf("upserting connection for user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO connection_history (user_id, chat_id) VALUES (?, ?)",
		userID, chatID,
	); err != nil {
		return fmt.Errorf("recording history for user %d: %w", userID, err)
	}

	return tx.Commit()
}

// UnsetConnectionChat clears the active chat, creating an empty record if
// the user has none. History is left untouched.
func (s *SQLiteStore) UnsetConnectionChat(ctx context.Context, userID int64) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO connections (user_id, chat_id, updated_at) VALUES (?, NULL, datetime('now'))
		 ON CONFLICT(user_id) DO UPDATE SET
		   chat_id = NULL,
		   updated_at = excluded.updated_at`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("unsetting connection for user %d: %w", userID, err)
	}
	return nil
}

// FindChat returns stored chat metadata, or nil when unknown.
func (s *SQLiteStore) FindChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	chat := &domain.Chat{ID: chatID}
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT chat_title FROM chats WHERE chat_id = ?", chatID,
	).Scan(&chat.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding chat %d: %w", chatID, err)
	}
	return chat, nil
}

// SaveChat inserts or renames a chat.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat domain.Chat) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chats (chat_id, chat_title) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   chat_title = excluded.chat_title,
		   updated_at = datetime('now')`,
		chat.ID, chat.Title,
	)
	if err != nil {
		return fmt.Errorf("saving chat %d: %w", chat.ID, err)
	}
	return nil
}

// FindUserMembership returns the chats the user was seen in, or nil if the
// user has no recorded membership.
func (s *SQLiteStore) FindUserMembership(ctx context.Context, userID int64) (*domain.Membership, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT chat_id FROM user_chats WHERE user_id = ? ORDER BY seen_at, chat_id", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding membership for user %d: %w", userID, err)
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		chats = append(chats, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return &domain.Membership{UserID: userID, Chats: chats}, nil
}

// AddUserChat records that the user was seen in chatID.
func (s *SQLiteStore) AddUserChat(ctx context.Context, userID, chatID int64) error {
	_, err := s.db.sql.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_chats (user_id, chat_id) VALUES (?, ?)", userID, chatID,
	)
	if err != nil {
		return fmt.Errorf("adding user %d to chat %d: %w", userID, chatID, err)
	}
	return nil
}

// FindChatConnectionSettings returns the chat's policy, or nil if never set.
func (s *SQLiteStore) FindChatConnectionSettings(ctx context.Context, chatID int64) (*domain.ChatConnectionSettings, error) {
	var allow sql.NullBool
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT allow_users_connect FROM chat_connection_settings WHERE chat_id = ?", chatID,
	).Scan(&allow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding settings for chat %d: %w", chatID, err)
	}

	settings := &domain.ChatConnectionSettings{ChatID: chatID}
	if allow.Valid {
		v := allow.Bool
		settings.AllowUsersConnect = &v
	}
	return settings, nil
}

// SetAllowUsersConnect stores the chat's flag; nil removes it so users are
// allowed by default again.
func (s *SQLiteStore) SetAllowUsersConnect(ctx context.Context, chatID int64, allow *bool) error {
	var v sql.NullBool
	if allow != nil {
		v = sql.NullBool{Bool: *allow, Valid: true}
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_connection_settings (chat_id, allow_users_connect) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET allow_users_connect = excluded.allow_users_connect`,
		chatID, v,
	)
	if err != nil {
		return fmt.Errorf("saving settings for chat %d: %w", chatID, err)
	}
	return nil
}

// SetChatAdmin grants or revokes admin status for a user in a chat.
func (s *SQLiteStore) SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error {
	query := "INSERT OR IGNORE INTO chat_admins (chat_id, user_id) VALUES (?, ?)"
	if !admin {
		query = "DELETE FROM chat_admins WHERE chat_id = ? AND user_id = ?"
	}
	if _, err := s.db.sql.ExecContext(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("updating admin %d in chat %d: %w", userID, chatID, err)
	}
	return nil
}

// IsChatAdmin reports whether the user is a recorded admin of the chat.
func (s *SQLiteStore) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_admins WHERE chat_id = ? AND user_id = ?", chatID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking admin %d in chat %d: %w", userID, chatID, err)
	}
	return n > 0, nil
}

// Stats summarizes store contents for the status command.
type Stats struct {
	Chats             int `json:"chats"`
	Connections       int `json:"connections"`
	ActiveConnections int `json:"activeConnections"`
}

// Stats counts stored records.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM connections),
			(SELECT COUNT(*) FROM connections WHERE chat_id IS NOT NULL)
	`).Scan(&st.Chats, &st.Connections, &st.ActiveConnections)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return st, nil
}
