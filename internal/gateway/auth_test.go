package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/chatconn/internal/config"
)

func TestSafeEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"secret", "secret", true},
		{"secret", "wrong", false},
		{"short", "longer-string", false},
		{"", "", true},
		{"secret", "", false},
		{"", "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, safeEqual(tt.a, tt.b))
		})
	}
}

// --- ResolveAuth tests ---

func TestResolveAuth_FromConfig(t *testing.T) {
	auth := ResolveAuth(config.GatewayAuth{Mode: "password", Password: "config-pass"})
	assert.Equal(t, AuthModePassword, auth.Mode)
	assert.Equal(t, "config-pass", auth.Password)
}

func TestResolveAuth_DefaultMode(t *testing.T) {
	t.Setenv("CHATCONN_GATEWAY_TOKEN", "")
	t.Setenv("CHATCONN_GATEWAY_PASSWORD", "")

	assert.Equal(t, AuthModeToken, ResolveAuth(config.GatewayAuth{Token: "t"}).Mode)
	assert.Equal(t, AuthModePassword, ResolveAuth(config.GatewayAuth{Password: "p"}).Mode)
	assert.Equal(t, AuthModeToken, ResolveAuth(config.GatewayAuth{}).Mode)
}

func TestResolveAuth_FromEnv(t *testing.T) {
	t.Setenv("CHATCONN_GATEWAY_TOKEN", "env-token")
	t.Setenv("CHATCONN_GATEWAY_PASSWORD", "env-pass")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token"})
	assert.Equal(t, "env-token", auth.Token)
	assert.Equal(t, "env-pass", auth.Password)
}

func TestResolveAuth_ConfigOverridesEnv(t *testing.T) {
	t.Setenv("CHATCONN_GATEWAY_TOKEN", "env-token")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "config-token"})
	assert.Equal(t, "config-token", auth.Token)
}

// --- Authorize tests ---

func TestAuthorize(t *testing.T) {
	tokenServer := ResolvedAuth{Mode: AuthModeToken, Token: "tok"}
	passServer := ResolvedAuth{Mode: AuthModePassword, Password: "pw"}

	tests := []struct {
		name       string
		server     ResolvedAuth
		client     *ConnectAuth
		wantOK     bool
		wantReason string
	}{
		{"token ok", tokenServer, &ConnectAuth{Token: "tok"}, true, ""},
		{"token mismatch", tokenServer, &ConnectAuth{Token: "nope"}, false, "token_mismatch"},
		{"token missing", tokenServer, &ConnectAuth{Password: "pw"}, false, "token required"},
		{"server token unset", ResolvedAuth{Mode: AuthModeToken}, &ConnectAuth{Token: "tok"}, false, "server token not configured"},
		{"password ok", passServer, &ConnectAuth{Password: "pw"}, true, ""},
		{"password mismatch", passServer, &ConnectAuth{Password: "x"}, false, "password_mismatch"},
		{"password missing", passServer, &ConnectAuth{Token: "tok"}, false, "password required"},
		{"no credentials", tokenServer, nil, false, "no credentials provided"},
		{"unknown mode", ResolvedAuth{Mode: "magic"}, &ConnectAuth{Token: "tok"}, false, "unknown auth mode: magic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantReason, res.Reason)
			if tt.wantOK {
				assert.Equal(t, tt.server.Mode, res.Method)
			}
		})
	}
}

// --- authRateLimiter tests ---

func TestAuthRateLimiter_BlocksAfterMaxFailures(t *testing.T) {
	limiter := newAuthRateLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	for i := 0; i < authRateMaxFails-1; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	limiter.recordFailure("192.168.1.1:5555")
	assert.False(t, limiter.allow("192.168.1.1:12345"), "port must not matter")
	assert.True(t, limiter.allow("192.168.1.2:12345"))
}

func TestAuthRateLimiter_HostWithoutPort(t *testing.T) {
	limiter := newAuthRateLimiter()
	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("192.168.1.1")
	}
	assert.False(t, limiter.allow("192.168.1.1"))
}

func TestAuthRateLimiter_FailuresExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newAuthRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("10.0.0.1:1")
	}
	assert.False(t, limiter.allow("10.0.0.1:1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, limiter.allow("10.0.0.1:1"))
	assert.Empty(t, limiter.failures)
}

func TestAuthRateLimiter_EvictsOldestHostWhenFull(t *testing.T) {
	limiter := newAuthRateLimiter()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.failures["oldest"] = []time.Time{base}
	for i := 1; i < authRateMaxHosts; i++ {
		limiter.failures[fmt.Sprintf("10.0.%d.%d", i/256, i%256)] = []time.Time{base.Add(time.Duration(i) * time.Second)}
	}
	assert.Len(t, limiter.failures, authRateMaxHosts)

	limiter.recordFailure("new-host")
	assert.Len(t, limiter.failures, authRateMaxHosts)
	assert.NotContains(t, limiter.failures, "oldest")
	assert.Contains(t, limiter.failures, "new-host")
}

// --- checkWebSocketOrigin tests ---

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest("GET", "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"unconfigured denies", nil, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://anything.com", true},
		{"specific match", []string{"http://one.com", "http://two.com"}, "http://two.com", true},
		{"specific miss", []string{"http://one.com"}, "http://three.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(originRequest(tt.origin)))
		})
	}
}
