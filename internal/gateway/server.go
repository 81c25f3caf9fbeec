// Package gateway serves the administrative HTTP + WebSocket API: health,
// Prometheus metrics and a JSON RPC over WebSocket for inspecting and
// changing users' chat connections.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/hooks"
	"github.com/soyeahso/chatconn/internal/logging"
	"github.com/soyeahso/chatconn/internal/version"
)

const (
	maxPayload       = 1 << 20
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Connections reads and changes stored connections. *connection.Manager
// implements it.
type Connections interface {
	Connection(ctx context.Context, userID int64) (*domain.Connection, error)
	SetConnection(ctx context.Context, userID int64, chatID *int64) error
	Invalidate(ctx context.Context, userID int64) error
}

// SettingsWriter changes a chat's connection policy.
type SettingsWriter interface {
	SetAllowUsersConnect(ctx context.Context, chatID int64, allow *bool) error
}

// AdminWriter grants and revokes admin rights. *permission.Admins
// implements it.
type AdminWriter interface {
	SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error
}

// Server is the chatconn admin gateway.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	connections Connections
	resolver    connection.TargetResolver
	settings    SettingsWriter
	admins      AdminWriter
	hooks       *hooks.Manager
	metrics     http.Handler

	mu        sync.RWMutex
	configRaw map[string]any
	addr      string

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

func WithConnections(c Connections) ServerOption {
	return func(s *Server) { s.connections = c }
}

func WithResolver(r connection.TargetResolver) ServerOption {
	return func(s *Server) { s.resolver = r }
}

func WithSettings(w SettingsWriter) ServerOption {
	return func(s *Server) { s.settings = w }
}

// WithHooks subscribes the server to connection lifecycle events, which are
// then broadcast to every authenticated client.
func WithAdmins(w AdminWriter) ServerOption {
	return func(s *Server) { s.admins = w }
}

func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithConfigRaw exposes the raw config map to config.get.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	s.subscribeHooks()
	return s
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, h RequestHandler) {
	s.handlers[method] = h
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

func (s *Server) subscribeHooks() {
	if s.hooks == nil {
		return
	}
	s.hooks.On(hooks.EventConnectionSet, "gateway", s.broadcastHook(EventConnectionChanged))
	s.hooks.On(hooks.EventConnectionCleared, "gateway", s.broadcastHook(EventConnectionChanged))
	s.hooks.On(hooks.EventResolutionRefused, "gateway", s.broadcastHook(EventResolutionRefused))
}

func (s *Server) broadcastHook(event string) hooks.Handler {
	return func(_ context.Context, p hooks.Payload) error {
		s.clients.Broadcast(event, p, s.eventSeq.Add(1))
		return nil
	}
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if tlsCfg := s.cfg.Gateway.TLS; tlsCfg.Enabled {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, credentials travel in cleartext")
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.startedAt = time.Now()

	go s.authLimiter.run(ctx)

	s.log.Info().
		Str("addr", s.Addr()).
		Str("auth", s.auth.Mode).
		Strs("methods", s.Methods()).
		Bool("metrics", s.metrics != nil).
		Msg("gateway server ready")
	if s.hooks != nil {
		// subscribers must not hold up serving
		s.hooks.EmitAsync(ctx, hooks.EventGatewayStart, hooks.Payload{})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.hooks != nil {
			select {
			case <-s.hooks.EmitAsync(shutdownCtx, hooks.EventGatewayStop, hooks.Payload{}):
			case <-shutdownCtx.Done():
				s.log.Warn().Msg("gateway_stop subscribers still running at shutdown")
			}
		}
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake sends a challenge, reads the connect request and authenticates it.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, CodeProtocol, "unsupported protocol version")
		return nil, fmt.Errorf("client protocol %d..%d unsupported", params.MinProtocol, params.MaxProtocol)
	}

	result := Authorize(s.auth, params.Auth)
	if !result.OK {
		sendErrorAndClose(conn, frame.ID, CodeUnauthorized, result.Reason)
		return nil, fmt.Errorf("auth failed: %s", result.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, result.Method)

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Commit, ConnID: client.ConnID},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventChallenge, EventConnectionChanged, EventResolutionRefused},
		},
		Policy: Policy{MaxPayload: maxPayload},
	}
	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := client.Send(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("conn_id", client.ConnID).
		Str("client_id", params.Client.ID).
		Str("auth_method", result.Method).
		Msg("client authenticated")
	return client, nil
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("conn_id", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	h, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	h(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
