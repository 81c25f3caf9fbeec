package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/domain"
)

// readableConfigPrefixes is the allowlist for config.get. Credentials and
// connection strings are never readable.
var readableConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"store.driver",
	"cache.backend",
	"cache.ttlSeconds",
	"cache.maxEntries",
	"permissions.source",
	"permissions.cacheSeconds",
	"permissions.cacheSize",
	"i18n",
	"metrics",
	"tracing.enabled",
	"tracing.sampleRate",
}

func isReadableConfigPath(key string) bool {
	for _, prefix := range readableConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("connection.get", s.rpcConnectionGet)
	s.Handle("connection.set", s.rpcConnectionSet)
	s.Handle("connection.clear", s.rpcConnectionClear)
	s.Handle("connection.resolve", s.rpcConnectionResolve)
	s.Handle("settings.allowConnect", s.rpcSettingsAllowConnect)
	s.Handle("chat.setAdmin", s.rpcChatSetAdmin)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{Status: "ok", Version: s.version, Clients: s.clients.Count()}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isReadableConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// ConnectionView is the RPC shape of a user's connection.
type ConnectionView struct {
	UserID    int64   `json:"userId"`
	Connected bool    `json:"connected"`
	ChatID    *int64  `json:"chatId,omitempty"`
	History   []int64 `json:"history"`
}

func viewOf(userID int64, c *domain.Connection) ConnectionView {
	v := ConnectionView{UserID: userID, History: []int64{}}
	if c == nil {
		return v
	}
	if chatID, ok := c.Active(); ok {
		v.Connected, v.ChatID = true, &chatID
	}
	if len(c.History) > 0 {
		v.History = c.History
	}
	return v
}

type userParams struct {
	UserID int64 `json:"userId"`
}

type setConnectionParams struct {
	UserID int64 `json:"userId"`
	ChatID int64 `json:"chatId"`
}

// respondConnection answers with the user's stored connection.
func (s *Server) respondConnection(rc *RequestContext, userID int64) {
	c, err := s.connections.Connection(rc.Ctx, userID)
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(viewOf(userID, c))
}

func (s *Server) rpcConnectionGet(rc *RequestContext) {
	if s.connections == nil {
		rc.RespondError(CodeUnavailable, "connection store not configured")
		return
	}
	var p userParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.UserID == 0 {
		rc.RespondError(CodeInvalidParams, "userId is required")
		return
	}
	s.respondConnection(rc, p.UserID)
}

func (s *Server) rpcConnectionSet(rc *RequestContext) {
	if s.connections == nil {
		rc.RespondError(CodeUnavailable, "connection store not configured")
		return
	}
	var p setConnectionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.UserID == 0 || p.ChatID == 0 {
		rc.RespondError(CodeInvalidParams, "userId and chatId are required")
		return
	}
	if err := s.connections.SetConnection(rc.Ctx, p.UserID, &p.ChatID); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	// a new target must not be shadowed by the previous resolution
	if err := s.connections.Invalidate(rc.Ctx, p.UserID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("invalidating resolution cache failed")
	}
	s.respondConnection(rc, p.UserID)
}

func (s *Server) rpcConnectionClear(rc *RequestContext) {
	if s.connections == nil {
		rc.RespondError(CodeUnavailable, "connection store not configured")
		return
	}
	var p userParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.UserID == 0 {
		rc.RespondError(CodeInvalidParams, "userId is required")
		return
	}
	if err := s.connections.SetConnection(rc.Ctx, p.UserID, nil); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	s.respondConnection(rc, p.UserID)
}

// resolveParams describes a simulated command invocation. ChatID defaults
// to the user's private chat.
type resolveParams struct {
	UserID           int64  `json:"userId"`
	ChatID           int64  `json:"chatId,omitempty"`
	ChatKind         string `json:"chatKind,omitempty"`
	ChatTitle        string `json:"chatTitle,omitempty"`
	LanguageCode     string `json:"languageCode,omitempty"`
	RequireAdmin     bool   `json:"requireAdmin,omitempty"`
	RequireGroupOnly bool   `json:"requireGroupOnly,omitempty"`
}

func (p resolveParams) request() connection.Request {
	msg := domain.Message{
		ChatID:       p.ChatID,
		ChatKind:     domain.ChatKind(p.ChatKind),
		ChatTitle:    p.ChatTitle,
		FromID:       p.UserID,
		LanguageCode: p.LanguageCode,
		Timestamp:    time.Now(),
	}
	if msg.ChatID == 0 {
		msg.ChatID = p.UserID
	}
	if msg.ChatKind == "" {
		msg.ChatKind = domain.ChatKindPrivate
		if msg.ChatID != p.UserID {
			msg.ChatKind = domain.ChatKindSupergroup
		}
	}
	return connection.Request{
		Message: msg,
		Requirements: domain.Requirements{
			RequireAdmin:     p.RequireAdmin,
			RequireGroupOnly: p.RequireGroupOnly,
		},
	}
}

// ResolveResult is the RPC shape of a resolution outcome.
type ResolveResult struct {
	Resolved bool           `json:"resolved"`
	Target   *domain.Target `json:"target,omitempty"`
	Reason   domain.Reason  `json:"reason,omitempty"`
}

func (s *Server) rpcConnectionResolve(rc *RequestContext) {
	if s.resolver == nil {
		rc.RespondError(CodeUnavailable, "resolver not configured")
		return
	}
	var p resolveParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.UserID == 0 {
		rc.RespondError(CodeInvalidParams, "userId is required")
		return
	}

	out, err := s.resolver.Resolve(rc.Ctx, p.request())
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	if !out.OK() {
		rc.Respond(ResolveResult{Reason: out.Reason})
		return
	}
	rc.Respond(ResolveResult{Resolved: true, Target: &out.Target})
}

type allowConnectParams struct {
	ChatID int64 `json:"chatId"`
	Allow  *bool `json:"allow"`
}

func (s *Server) rpcSettingsAllowConnect(rc *RequestContext) {
	if s.settings == nil {
		rc.RespondError(CodeUnavailable, "settings store not configured")
		return
	}
	var p allowConnectParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ChatID == 0 {
		rc.RespondError(CodeInvalidParams, "chatId is required")
		return
	}
	if err := s.settings.SetAllowUsersConnect(rc.Ctx, p.ChatID, p.Allow); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(domain.ChatConnectionSettings{ChatID: p.ChatID, AllowUsersConnect: p.Allow})
}

type setAdminParams struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
	Admin  bool  `json:"admin"`
}

func (s *Server) rpcChatSetAdmin(rc *RequestContext) {
	if s.admins == nil {
		rc.RespondError(CodeUnavailable, "admin store not configured")
		return
	}
	var p setAdminParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ChatID == 0 || p.UserID == 0 {
		rc.RespondError(CodeInvalidParams, "chatId and userId are required")
		return
	}
	if err := s.admins.SetChatAdmin(rc.Ctx, p.ChatID, p.UserID, p.Admin); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(p)
}
