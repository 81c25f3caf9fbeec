package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/soyeahso/chatconn/internal/logging"
)

// BadgerKV stores each hash as a JSON object under its key and relies on
// Badger's entry TTL for expiry.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens a Badger database at dir. An empty dir keeps everything
// in memory.
func OpenBadger(dir string, log *logging.Logger) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log.Sub("badger")})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return NewBadgerKV(db), nil
}

// NewBadgerKV wraps an open database. Close closes it.
func NewBadgerKV(db *badger.DB) *BadgerKV {
	return &BadgerKV{db: db}
}

// read loads the hash and its absolute expiry (zero when none).
func read(txn *badger.Txn, key string) (map[string]string, uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	fields := map[string]string{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &fields)
	}); err != nil {
		return nil, 0, fmt.Errorf("decoding %q: %w", key, err)
	}
	return fields, item.ExpiresAt(), nil
}

func write(txn *badger.Txn, key string, fields map[string]string, ttl time.Duration) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	e := badger.NewEntry([]byte(key), data)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return txn.SetEntry(e)
}

func remaining(expiresAt uint64) time.Duration {
	if expiresAt == 0 {
		return 0
	}
	d := time.Until(time.Unix(int64(expiresAt), 0))
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (b *BadgerKV) GetAll(_ context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := b.db.View(func(txn *badger.Txn) error {
		fields, _, err := read(txn, key)
		out = fields
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (b *BadgerKV) SetAll(_ context.Context, key string, fields map[string]string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		existing, expiresAt, err := read(txn, key)
		if err != nil {
			return err
		}
		merged := copyFields(existing)
		for k, v := range fields {
			merged[k] = v
		}
		return write(txn, key, merged, remaining(expiresAt))
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

func (b *BadgerKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		fields, _, err := read(txn, key)
		if err != nil || fields == nil {
			return err
		}
		if ttl <= 0 {
			return txn.Delete([]byte(key))
		}
		return write(txn, key, fields, ttl)
	})
	if err != nil {
		return fmt.Errorf("badger expire %q: %w", key, err)
	}
	return nil
}

func (b *BadgerKV) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}
	return nil
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's printf-style logging into zerolog.
type badgerLogger struct {
	log *logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log.Error().Msgf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log.Warn().Msgf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log.Debug().Msgf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log.Trace().Msgf(format, args...) }
