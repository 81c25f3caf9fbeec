package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// Append only; applied versions are never edited.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chats and memberships",
		SQL: `
			CREATE TABLE chats (
				chat_id     INTEGER PRIMARY KEY,
				chat_title  TEXT NOT NULL DEFAULT '',
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE user_chats (
				user_id  INTEGER NOT NULL,
				chat_id  INTEGER NOT NULL,
				seen_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (user_id, chat_id)
			);

			CREATE INDEX idx_user_chats_chat ON user_chats (chat_id);
		`,
	},
	{
		Version: 2,
		Name:    "create connections and history",
		SQL: `
			CREATE TABLE connections (
				user_id     INTEGER PRIMARY KEY,
				chat_id     INTEGER,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE connection_history (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id     INTEGER NOT NULL REFERENCES connections(user_id) ON DELETE CASCADE,
				chat_id     INTEGER NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				UNIQUE (user_id, chat_id)
			);
		`,
	},
	{
		Version: 3,
		Name:    "create chat connection settings and admins",
		SQL: `
			CREATE TABLE chat_connection_settings (
				chat_id              INTEGER PRIMARY KEY,
				allow_users_connect  INTEGER
			);

			CREATE TABLE chat_admins (
				chat_id  INTEGER NOT NULL,
				user_id  INTEGER NOT NULL,
				PRIMARY KEY (chat_id, user_id)
			);
		`,
	},
}
