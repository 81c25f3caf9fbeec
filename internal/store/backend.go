package store

import (
	"context"
	"fmt"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

// Backend is everything the CLI and gateway need from a store.
type Backend interface {
	FindConnection(ctx context.Context, userID int64) (*domain.Connection, error)
	FindChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	FindUserMembership(ctx context.Context, userID int64) (*domain.Membership, error)
	FindChatConnectionSettings(ctx context.Context, chatID int64) (*domain.ChatConnectionSettings, error)

	UpsertConnection(ctx context.Context, userID, chatID int64) error
	UnsetConnectionChat(ctx context.Context, userID int64) error

	SaveChat(ctx context.Context, chat domain.Chat) error
	AddUserChat(ctx context.Context, userID, chatID int64) error
	SetAllowUsersConnect(ctx context.Context, chatID int64, allow *bool) error
	SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)

	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}

var (
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*MongoStore)(nil)
)

// Close closes the underlying database.
func (s *SQLiteStore) Close(context.Context) error { return s.db.Close() }

// OpenBackend opens the store selected by cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, paths config.Paths, log *logging.Logger) (Backend, error) {
	switch cfg.Driver {
	case "", "sqlite":
		db, err := Open(ctx, paths.DatabasePath(cfg), log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db), nil
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
