package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

// MaxTTL bounds how long a resolution may be served without re-validation.
const MaxTTL = 900 * time.Second

const (
	keyPrefix    = "connection_cache_"
	fieldStatus  = "status"
	fieldChatID  = "chat_id"
	fieldTitle   = "chat_title"
	statusActive = "1"
)

// Key returns the cache key for a user.
func Key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// ResolutionCache stores the last authorised connection target per user.
type ResolutionCache struct {
	kv  KV
	ttl time.Duration
	log *logging.Logger
}

// NewResolutionCache wraps kv. A ttl outside (0, MaxTTL] is clamped to MaxTTL.
func NewResolutionCache(kv KV, ttl time.Duration, log *logging.Logger) *ResolutionCache {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &ResolutionCache{kv: kv, ttl: ttl, log: log.Sub("cache")}
}

// TTL returns the expiry applied by Put.
func (c *ResolutionCache) TTL() time.Duration { return c.ttl }

// Get returns the cached target for userID. Entries that do not parse are
// deleted and reported as a miss.
func (c *ResolutionCache) Get(ctx context.Context, userID int64) (domain.Target, bool, error) {
	key := Key(userID)
	fields, err := c.kv.GetAll(ctx, key)
	if err != nil {
		return domain.Target{}, false, fmt.Errorf("reading cache for user %d: %w", userID, err)
	}
	if len(fields) == 0 {
		return domain.Target{}, false, nil
	}

	chatID, err := strconv.ParseInt(fields[fieldChatID], 10, 64)
	if fields[fieldStatus] != statusActive || err != nil {
		c.log.Warn().Int64("user_id", userID).Interface("fields", fields).Msg("dropping malformed cache entry")
		if err := c.kv.Delete(ctx, key); err != nil {
			c.log.Error().Err(err).Int64("user_id", userID).Msg("deleting malformed cache entry")
		}
		return domain.Target{}, false, nil
	}

	return domain.Target{
		ChatID:              chatID,
		ChatTitle:           fields[fieldTitle],
		IsPrivateConnection: true,
		Source:              domain.SourceCache,
	}, true, nil
}

// Put stores target for userID and sets its expiry. If the expiry cannot be
// set the entry is removed so it never lives unbounded.
func (c *ResolutionCache) Put(ctx context.Context, userID int64, target domain.Target) error {
	key := Key(userID)
	fields := map[string]string{
		fieldStatus: statusActive,
		fieldChatID: strconv.FormatInt(target.ChatID, 10),
		fieldTitle:  target.ChatTitle,
	}
	if err := c.kv.SetAll(ctx, key, fields); err != nil {
		return fmt.Errorf("writing cache for user %d: %w", userID, err)
	}
	if err := c.kv.Expire(ctx, key, c.ttl); err != nil {
		err = fmt.Errorf("setting cache expiry for user %d: %w", userID, err)
		if derr := c.kv.Delete(ctx, key); derr != nil {
			return errors.Join(err, fmt.Errorf("removing unexpiring entry: %w", derr))
		}
		return err
	}
	return nil
}

// Invalidate removes the user's entry.
func (c *ResolutionCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.kv.Delete(ctx, Key(userID)); err != nil {
		return fmt.Errorf("invalidating cache for user %d: %w", userID, err)
	}
	return nil
}
