package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxHosts = 10000
)

// authRateLimiter counts failed handshakes per remote host.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

// run prunes stale hosts every minute until ctx is done.
func (l *authRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for host := range l.failures {
				l.pruneLocked(host)
			}
			l.mu.Unlock()
		}
	}
}

// pruneLocked drops failures older than the window and returns what is left.
func (l *authRateLimiter) pruneLocked(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	recent := l.failures[host][:0]
	for _, t := range l.failures[host] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = recent
	return recent
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(host)) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.failures[host]; !ok && len(l.failures) >= authRateMaxHosts {
		l.evictOldestLocked()
	}
	l.failures[host] = append(l.failures[host], l.now())
}

func (l *authRateLimiter) evictOldestLocked() {
	var oldest string
	var at time.Time
	for host, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(at)) {
			oldest, at = host, times[0]
		}
	}
	if oldest != "" {
		delete(l.failures, oldest)
	}
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
