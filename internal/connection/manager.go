package connection

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/hooks"
	"github.com/soyeahso/chatconn/internal/logging"
	"github.com/soyeahso/chatconn/internal/observability"
)

// ManagerStore is what the Manager needs from persistence.
type ManagerStore interface {
	Writer
	FindConnection(ctx context.Context, userID int64) (*domain.Connection, error)
}

// Manager changes users' connections and keeps the cache honest.
type Manager struct {
	store ManagerStore
	cache Cache
	log   *logging.Logger
	opts  options
}

// NewManager builds a manager that writes through store and keeps cache in
// step on disconnect.
func NewManager(store ManagerStore, cache Cache, log *logging.Logger, opts ...Option) *Manager {
	return &Manager{store: store, cache: cache, log: log.Sub("manager"), opts: applyOptions(opts)}
}

// SetConnection connects userID to *chatID, or disconnects when chatID is nil.
func (m *Manager) SetConnection(ctx context.Context, userID int64, chatID *int64) error {
	if chatID == nil {
		return m.Disconnect(ctx, userID)
	}
	return m.Connect(ctx, userID, *chatID)
}

// Connect makes chatID the user's active chat and adds it to the history.
// Any cached resolution is left alone.
func (m *Manager) Connect(ctx context.Context, userID, chatID int64) error {
	ctx, span := m.opts.tracing.Start(ctx, observability.SpanSetConn,
		attribute.Int64(observability.AttrUserID, userID),
		attribute.Int64(observability.AttrChatID, chatID),
	)
	defer span.End()

	if err := m.store.UpsertConnection(ctx, userID, chatID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("connecting user %d to chat %d: %w", userID, chatID, err)
	}

	m.log.Info().Int64("user_id", userID).Int64("chat_id", chatID).Msg("connected")
	m.opts.metrics.Change("connect")
	m.emit(ctx, hooks.EventConnectionSet, hooks.Payload{UserID: userID, ChatID: chatID})
	return nil
}

// Disconnect clears the user's active chat and then drops the cached
// resolution. The cache delete runs even if the store update failed.
func (m *Manager) Disconnect(ctx context.Context, userID int64) error {
	ctx, span := m.opts.tracing.Start(ctx, observability.SpanSetConn,
		attribute.Int64(observability.AttrUserID, userID),
	)
	defer span.End()

	var errs []error
	if err := m.store.UnsetConnectionChat(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("disconnecting user %d: %w", userID, err))
	}
	if err := m.cache.Invalidate(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		m.log.Error().Err(err).Int64("user_id", userID).Msg("disconnect incomplete")
		return err
	}

	m.log.Info().Int64("user_id", userID).Msg("disconnected")
	m.opts.metrics.Change("disconnect")
	m.emit(ctx, hooks.EventConnectionCleared, hooks.Payload{UserID: userID})
	return nil
}

// Invalidate drops the user's cached resolution.
func (m *Manager) Invalidate(ctx context.Context, userID int64) error {
	return m.cache.Invalidate(ctx, userID)
}

// Connection returns the user's connection record, or nil.
func (m *Manager) Connection(ctx context.Context, userID int64) (*domain.Connection, error) {
	conn, err := m.store.FindConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading connection of user %d: %w", userID, err)
	}
	return conn, nil
}

func (m *Manager) emit(ctx context.Context, event string, p hooks.Payload) {
	if m.opts.hooks != nil {
		m.opts.hooks.Emit(ctx, event, p)
	}
}
