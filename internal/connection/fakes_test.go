package connection

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soyeahso/chatconn/internal/cache"
	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

var errBoom = errors.New("boom")

func ptr[T any](v T) *T { return &v }

func silent() *logging.Logger { return logging.New(nil, "silent") }

// fakeStore is an in-memory Store, Writer and ManagerStore that counts calls.
type fakeStore struct {
	mu          sync.Mutex
	connections map[int64]*domain.Connection
	chats       map[int64]domain.Chat
	members     map[int64][]int64
	settings    map[int64]*domain.ChatConnectionSettings

	calls  map[string]int
	failOn map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: map[int64]*domain.Connection{},
		chats:       map[int64]domain.Chat{},
		members:     map[int64][]int64{},
		settings:    map[int64]*domain.ChatConnectionSettings{},
		calls:       map[string]int{},
		failOn:      map[string]error{},
	}
}

func (s *fakeStore) hit(method string) error {
	s.calls[method]++
	return s.failOn[method]
}

func (s *fakeStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *fakeStore) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeStore) FindConnection(_ context.Context, userID int64) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindConnection"); err != nil {
		return nil, err
	}
	c, ok := s.connections[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.History = slices.Clone(c.History)
	return &cp, nil
}

func (s *fakeStore) FindChat(_ context.Context, chatID int64) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindChat"); err != nil {
		return nil, err
	}
	c, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) FindUserMembership(_ context.Context, userID int64) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindUserMembership"); err != nil {
		return nil, err
	}
	chats, ok := s.members[userID]
	if !ok {
		return nil, nil
	}
	return &domain.Membership{UserID: userID, Chats: chats}, nil
}

func (s *fakeStore) FindChatConnectionSettings(_ context.Context, chatID int64) (*domain.ChatConnectionSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindChatConnectionSettings"); err != nil {
		return nil, err
	}
	return s.settings[chatID], nil
}

func (s *fakeStore) UpsertConnection(_ context.Context, userID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UpsertConnection"); err != nil {
		return err
	}
	c, ok := s.connections[userID]
	if !ok {
		c = &domain.Connection{UserID: userID}
		s.connections[userID] = c
	}
	c.ChatID = &chatID
	if !slices.Contains(c.History, chatID) {
		c.History = append(c.History, chatID)
	}
	return nil
}

func (s *fakeStore) UnsetConnectionChat(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UnsetConnectionChat"); err != nil {
		return err
	}
	c, ok := s.connections[userID]
	if !ok {
		c = &domain.Connection{UserID: userID}
		s.connections[userID] = c
	}
	c.ChatID = nil
	return nil
}

// fakeOracle answers from a set of (chat, user) admin pairs.
type fakeOracle struct {
	mu     sync.Mutex
	admins map[[2]int64]bool
	calls  int
	err    error
}

func newFakeOracle() *fakeOracle { return &fakeOracle{admins: map[[2]int64]bool{}} }

func (o *fakeOracle) IsAdmin(_ context.Context, chatID, userID int64) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	return o.admins[[2]int64{chatID, userID}], nil
}

func (o *fakeOracle) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// failingCache wraps a real cache and can fail individual operations.
type failingCache struct {
	Cache
	getErr, putErr, invalidateErr error
	puts, invalidates             int
}

func (c *failingCache) Get(ctx context.Context, userID int64) (domain.Target, bool, error) {
	if c.getErr != nil {
		return domain.Target{}, false, c.getErr
	}
	return c.Cache.Get(ctx, userID)
}

func (c *failingCache) Put(ctx context.Context, userID int64, t domain.Target) error {
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	return c.Cache.Put(ctx, userID, t)
}

func (c *failingCache) Invalidate(ctx context.Context, userID int64) error {
	c.invalidates++
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	return c.Cache.Invalidate(ctx, userID)
}

func newCache(t *testing.T) *cache.ResolutionCache {
	t.Helper()
	kv, err := cache.NewMemoryKV(64)
	require.NoError(t, err)
	return cache.NewResolutionCache(kv, cache.MaxTTL, silent())
}

// fakeReplier records replies.
type fakeReplier struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (r *fakeReplier) Reply(_ context.Context, _ domain.Message, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return r.err
}

// reasonLocalizer renders a reason as "lang:reason".
type reasonLocalizer struct{}

func (reasonLocalizer) Refusal(lang string, r domain.Reason) string { return lang + ":" + string(r) }

func groupMsg(chatID, from int64, title string) domain.Message {
	return domain.Message{ID: 1, ChatID: chatID, ChatKind: domain.ChatKindSupergroup, ChatTitle: title, FromID: from}
}

func privateMsg(from int64) domain.Message {
	return domain.Message{ID: 1, ChatID: from, ChatKind: domain.ChatKindPrivate, FromID: from, LanguageCode: "en"}
}
