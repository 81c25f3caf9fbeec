package gateway

import (
	"crypto/subtle"
	"os"

	"github.com/soyeahso/chatconn/internal/config"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth is the effective gateway credential set.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth merges configured credentials with CHATCONN_GATEWAY_TOKEN and
// CHATCONN_GATEWAY_PASSWORD. Config wins over the environment. Without an
// explicit mode, a password selects password mode and anything else token mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    firstNonEmpty(cfg.Token, os.Getenv("CHATCONN_GATEWAY_TOKEN")),
		Password: firstNonEmpty(cfg.Password, os.Getenv("CHATCONN_GATEWAY_PASSWORD")),
	}
	if auth.Mode == "" {
		auth.Mode = AuthModeToken
		if auth.Password != "" {
			auth.Mode = AuthModePassword
		}
	}
	return auth
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Authorize checks client credentials against the server's.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch server.Mode {
	case AuthModeToken:
		want, got = server.Token, client.Token
	case AuthModePassword:
		want, got = server.Password, client.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}

	switch {
	case want == "":
		return AuthResult{Reason: "server " + server.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: server.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: server.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// safeEqual compares in constant time without leaking the secret's length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
