package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/chatconn/internal/cache"
	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/hooks"
	"github.com/soyeahso/chatconn/internal/observability"
	"github.com/soyeahso/chatconn/internal/permission"
	"github.com/soyeahso/chatconn/internal/store"
)

const (
	testToken = "test-token-123"
	groupID   = int64(-100555)
	userID    = int64(42)
)

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.SQLiteStore
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	return cfg
}

func serve(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)
	ts := httptest.NewServer(withMiddleware(mux, testLog(), nil))
	t.Cleanup(ts.Close)
	return ts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := testLog()

	db, err := store.Open(ctx, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLiteStore(db)

	kv, err := cache.NewMemoryKV(16)
	require.NoError(t, err)
	rc := cache.NewResolutionCache(kv, 0, log)

	hm := hooks.NewManager(log)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	mgr := connection.NewManager(st, rc, log, connection.WithHooks(hm), connection.WithMetrics(metrics))
	oracle := permission.NewCached(permission.NewStoreOracle(st), 16, time.Minute)
	res := connection.NewResolver(st, rc, oracle, log,
		connection.WithHooks(hm), connection.WithMetrics(metrics))

	raw := map[string]any{
		"gateway": map[string]any{
			"port": 18790,
			"auth": map[string]any{"token": testToken},
		},
	}
	srv := New(testConfig(), log,
		WithConnections(mgr),
		WithResolver(res),
		WithSettings(st),
		WithAdmins(permission.NewAdmins(st, oracle)),
		WithHooks(hm),
		WithMetricsHandler(observability.Handler(reg)),
		WithConfigRaw(raw),
	)
	return &testEnv{srv: srv, ts: serve(t, srv), store: st}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectFrame(t *testing.T, token string) Frame {
	t.Helper()
	f, err := NewRequest("auth-req", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0"},
		Auth:        &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	return f
}

func dialAuthenticated(t *testing.T, ts *httptest.Server) (*websocket.Conn, HelloOK) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, EventChallenge, challenge.Event)

	require.NoError(t, conn.WriteJSON(connectFrame(t, testToken)))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	return conn, hello
}

// call sends a request and reads until its response, collecting any events
// pushed in between.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	defer conn.SetReadDeadline(time.Time{})

	var events []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent {
			events = append(events, f)
			continue
		}
		require.Equal(t, id, f.ID)
		return f, events
	}
}

func decode[T any](t *testing.T, f Frame) T {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error response: %+v", f.Error)
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func requireError(t *testing.T, f Frame, code string) {
	t.Helper()
	require.NotNil(t, f.OK)
	assert.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, code, f.Error.Code)
}

// --- HTTP tests ---

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version, "public health hides details")
}

func TestNotFoundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialAuthenticated(t, env.ts)
	call(t, conn, "r1", "connection.resolve", resolveParams{UserID: userID})

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chatconn_resolver_resolutions_total")
}

func TestMetricsEndpoint_AbsentWithoutHandler(t *testing.T) {
	ts := serve(t, New(testConfig(), testLog()))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Handshake tests ---

func TestHandshake_Success(t *testing.T) {
	env := newTestEnv(t)
	_, hello := dialAuthenticated(t, env.ts)

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{
		"chat.setAdmin",
		"config.get",
		"connection.clear",
		"connection.get",
		"connection.resolve",
		"connection.set",
		"health",
		"settings.allowConnect",
	}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventConnectionChanged)
	assert.Contains(t, hello.Features.Events, EventResolutionRefused)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)
}

func TestHandshake_WrongToken(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.NoError(t, conn.WriteJSON(connectFrame(t, "wrong-token")))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	requireError(t, resp, CodeUnauthorized)
	assert.Equal(t, "token_mismatch", resp.Error.Message)
}

func TestHandshake_RequiresConnectFirst(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	req, err := NewRequest("r1", "health", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	requireError(t, resp, CodeProtocol)
}

// --- RPC tests ---

func TestRPCHealth(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialAuthenticated(t, env.ts)

	resp, _ := call(t, conn, "r1", "health", nil)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	assert.NotEmpty(t, health.Version)
}

func TestRPCUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialAuthenticated(t, env.ts)

	resp, _ := call(t, conn, "r1", "nonexistent.method", nil)
	requireError(t, resp, CodeMethodNotFound)
}

func TestRPCConfigGet(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialAuthenticated(t, env.ts)

	resp, _ := call(t, conn, "r1", "config.get", configGetParams{Key: "gateway.port"})
	got := decode[map[string]any](t, resp)
	assert.Equal(t, float64(18790), got["value"])

	resp, _ = call(t, conn, "r2", "config.get", configGetParams{Key: "gateway.auth.token"})
	requireError(t, resp, CodeForbidden)

	resp, _ = call(t, conn, "r3", "config.get", configGetParams{Key: "logging.level"})
	requireError(t, resp, CodeNotFound)

	resp, _ = call(t, conn, "r4", "config.get", configGetParams{})
	requireError(t, resp, CodeInvalidParams)
}

func TestRPCConnectionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialAuthenticated(t, env.ts)

	resp, _ := call(t, conn, "r1", "connection.get", userParams{UserID: userID})
	view := decode[ConnectionView](t, resp)
	assert.False(t, view.Connected)
	assert.Empty(t, view.History)

	resp, events := call(t, conn, "r2", "connection.set", setConnectionParams{UserID: userID, ChatID: groupID})
	view = decode[ConnectionView](t, resp)
	assert.True(t, view.Connected)
	require.NotNil(t, view.ChatID)
	assert.Equal(t, groupID, *view.ChatID)
	assert.Equal(t, []int64{groupID}, view.History)

	require.Len(t, events, 1)
	assert.Equal(t, EventConnectionChanged, events[0].Event)
	var p hooks.Payload
	require.NoError(t, json.Unmarshal(events[0].Payload, &p))
	assert.Equal(t, hooks.EventConnectionSet, p.Event)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, groupID, p.ChatID)

	resp, events = call(t, conn, "r3", "connection.clear", userParams{UserID: userID})
	view = decode[ConnectionView](t, resp)
	assert.False(t, view.Connected)
	assert.Equal(t, []int64{groupID}, view.History, "history survives a disconnect")
	require.Len(t, events, 1)
	assert.Greater(t, events[0].Seq, int64(1))

	resp, _ = call(t, conn, "r4", "connection.set", setConnectionParams{UserID: userID})
	requireError(t, resp, CodeInvalidParams)
}

func TestRPCConnectionResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveChat(ctx, domain.Chat{ID: groupID, Title: "Gophers"}))
	require.NoError(t, env.store.AddUserChat(ctx, userID, groupID))

	conn, _ := dialAuthenticated(t, env.ts)

	resp, events := call(t, conn, "r1", "connection.resolve", resolveParams{UserID: userID, RequireGroupOnly: true})
	result := decode[ResolveResult](t, resp)
	assert.False(t, result.Resolved)
	assert.Equal(t, domain.ReasonOnlyInGroups, result.Reason)
	require.Len(t, events, 1)
	assert.Equal(t, EventResolutionRefused, events[0].Event)

	resp, _ = call(t, conn, "r2", "connection.resolve", resolveParams{UserID: userID})
	result = decode[ResolveResult](t, resp)
	require.True(t, result.Resolved)
	assert.Equal(t, domain.Target{ChatID: userID, ChatTitle: domain.LocalChatTitle, Source: domain.SourceLocal}, *result.Target)

	call(t, conn, "r3", "connection.set", setConnectionParams{UserID: userID, ChatID: groupID})

	resp, _ = call(t, conn, "r4", "connection.resolve", resolveParams{UserID: userID})
	result = decode[ResolveResult](t, resp)
	require.True(t, result.Resolved)
	assert.Equal(t, domain.Target{
		ChatID:              groupID,
		ChatTitle:           "Gophers",
		IsPrivateConnection: true,
		Source:              domain.SourceConnection,
	}, *result.Target)

	resp, _ = call(t, conn, "r5", "connection.resolve", resolveParams{UserID: userID, ChatID: groupID, ChatTitle: "Ignored"})
	result = decode[ResolveResult](t, resp)
	require.True(t, result.Resolved)
	assert.Equal(t, domain.SourceChat, result.Target.Source)
	assert.Equal(t, "Gophers", result.Target.ChatTitle)

	resp, _ = call(t, conn, "r6", "connection.resolve", resolveParams{})
	requireError(t, resp, CodeInvalidParams)
}

func TestRPCSettingsAllowConnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn, _ := dialAuthenticated(t, env.ts)

	deny := false
	resp, _ := call(t, conn, "r1", "settings.allowConnect", allowConnectParams{ChatID: groupID, Allow: &deny})
	got := decode[domain.ChatConnectionSettings](t, resp)
	require.NotNil(t, got.AllowUsersConnect)
	assert.False(t, *got.AllowUsersConnect)

	settings, err := env.store.FindChatConnectionSettings(ctx, groupID)
	require.NoError(t, err)
	assert.True(t, settings.ForbidsUsers())

	resp, _ = call(t, conn, "r2", "settings.allowConnect", allowConnectParams{ChatID: groupID})
	got = decode[domain.ChatConnectionSettings](t, resp)
	assert.Nil(t, got.AllowUsersConnect)

	settings, err = env.store.FindChatConnectionSettings(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, settings.ForbidsUsers())

	resp, _ = call(t, conn, "r3", "settings.allowConnect", allowConnectParams{})
	requireError(t, resp, CodeInvalidParams)
}

func TestRPCUnavailableWithoutBackends(t *testing.T) {
	ts := serve(t, New(testConfig(), testLog()))
	conn, _ := dialAuthenticated(t, ts)

	for _, method := range []string{"connection.get", "connection.set", "connection.clear", "connection.resolve", "settings.allowConnect", "chat.setAdmin"} {
		t.Run(method, func(t *testing.T) {
			resp, _ := call(t, conn, method, method, userParams{UserID: userID})
			requireError(t, resp, CodeUnavailable)
		})
	}
}

func TestRPCChatSetAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.AddUserChat(ctx, userID, groupID))
	require.NoError(t, env.store.UpsertConnection(ctx, userID, groupID))

	conn, _ := dialAuthenticated(t, env.ts)

	resp, _ := call(t, conn, "r1", "connection.resolve", resolveParams{UserID: userID, RequireAdmin: true})
	assert.Equal(t, domain.ReasonMustBeAdmin, decode[ResolveResult](t, resp).Reason)

	resp, _ = call(t, conn, "r2", "chat.setAdmin", setAdminParams{ChatID: groupID, UserID: userID, Admin: true})
	assert.Equal(t, setAdminParams{ChatID: groupID, UserID: userID, Admin: true}, decode[setAdminParams](t, resp))

	// the memoized "not admin" answer must not survive the grant
	resp, _ = call(t, conn, "r3", "connection.resolve", resolveParams{UserID: userID, RequireAdmin: true})
	result := decode[ResolveResult](t, resp)
	require.True(t, result.Resolved)
	assert.Equal(t, groupID, result.Target.ChatID)

	admin, err := env.store.IsChatAdmin(ctx, groupID, userID)
	require.NoError(t, err)
	assert.True(t, admin)

	resp, _ = call(t, conn, "r4", "chat.setAdmin", setAdminParams{ChatID: groupID})
	requireError(t, resp, CodeInvalidParams)
}

// --- Lifecycle tests ---

func TestServerStart(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Port = 0

	hm := hooks.NewManager(testLog())
	started := make(chan struct{}, 1)
	hm.On(hooks.EventGatewayStart, "test", func(context.Context, hooks.Payload) error {
		started <- struct{}{}
		return nil
	})

	srv := New(cfg, testLog(), WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-started:
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	assert.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestRPCConnectionSet_InvalidatesCachedTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const otherGroup = int64(-100777)
	require.NoError(t, env.store.AddUserChat(ctx, userID, groupID))
	require.NoError(t, env.store.AddUserChat(ctx, userID, otherGroup))

	conn, _ := dialAuthenticated(t, env.ts)

	call(t, conn, "r1", "connection.set", setConnectionParams{UserID: userID, ChatID: groupID})
	resp, _ := call(t, conn, "r2", "connection.resolve", resolveParams{UserID: userID})
	require.Equal(t, groupID, decode[ResolveResult](t, resp).Target.ChatID)

	resp, _ = call(t, conn, "r3", "connection.resolve", resolveParams{UserID: userID})
	require.Equal(t, domain.SourceCache, decode[ResolveResult](t, resp).Target.Source)

	call(t, conn, "r4", "connection.set", setConnectionParams{UserID: userID, ChatID: otherGroup})
	resp, _ = call(t, conn, "r5", "connection.resolve", resolveParams{UserID: userID})
	result := decode[ResolveResult](t, resp)
	require.True(t, result.Resolved)
	assert.Equal(t, otherGroup, result.Target.ChatID)
	assert.Equal(t, domain.SourceConnection, result.Target.Source)
}

func TestServerStart_StopHookAndSlowStartSubscriber(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Port = 0

	hm := hooks.NewManager(testLog())
	release := make(chan struct{})
	defer close(release)
	hm.On(hooks.EventGatewayStart, "slow", func(context.Context, hooks.Payload) error {
		<-release
		return nil
	})
	stopped := make(chan struct{}, 1)
	hm.On(hooks.EventGatewayStop, "test", func(context.Context, hooks.Payload) error {
		stopped <- struct{}{}
		return nil
	})

	srv := New(cfg, testLog(), WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-errCh)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway_stop was not emitted")
	}
}
